package sim

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pthm-cable/v2drift/components"
)

// logWriter is the destination for the progress table. Concurrent runs share
// it, so writes are serialized by logMu.
var (
	logWriter io.Writer
	logMu     sync.Mutex
)

// SetLogWriter sets the progress output destination. nil means stdout.
func SetLogWriter(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logWriter = w
}

// Logf writes a formatted line to the progress output.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logMu.Lock()
	defer logMu.Unlock()
	if logWriter != nil {
		fmt.Fprintln(logWriter, msg)
	} else {
		fmt.Println(msg)
	}
}

// Progress table cells. A location without speakers of a variant shows a
// dash instead of a fraction.
const (
	celtCell      = "   %.4f"
	vikingCell    = " %.4f"
	celtMissing   = "     --  "
	vikingMissing = "   --  "
)

// logHeader prints the run banner, the table header and the corpus row.
func (s *Simulation) logHeader() {
	runs := s.opts.Runs
	if runs < 1 {
		runs = 1
	}
	Logf("\n--- Run %d of %d ---\n", s.opts.Run+1, runs)
	Logf("Fraction of V2 sentences")

	var head, rule, corpus strings.Builder
	head.WriteString("    #  ")
	rule.WriteString("-------")
	corpus.WriteString("   0.0%")
	for loc := 0; loc < s.params.Locations; loc++ {
		head.WriteString("    Celt  Viking")
		rule.WriteString("   ------ ------")
		writeCells(&corpus,
			s.rc.Celt.Sizes[loc] > 0, corpusFraction(s.rc.Celt.Corpus),
			s.rc.Viking.Sizes[loc] > 0, corpusFraction(s.rc.Viking.Corpus),
		)
	}
	prefix := s.linePrefix()
	Logf("%s%s", prefix, head.String())
	Logf("%s%s", prefix, rule.String())
	Logf("%s%s", prefix, corpus.String())
}

// linePrefix tags table lines with the run number when runs execute in
// parallel and their tables interleave.
func (s *Simulation) linePrefix() string {
	if s.opts.Runs > 1 && s.params.Workers > 1 {
		return fmt.Sprintf("[run %d] ", s.opts.Run+1)
	}
	return ""
}

// logProgress prints the running V2 fraction per location and variant.
func (s *Simulation) logProgress() {
	var row strings.Builder
	row.WriteString(s.linePrefix())
	pct := 100 * float64(s.interaction) / float64(s.params.Interactions)
	fmt.Fprintf(&row, "%6.1f%%", pct)
	for loc := 0; loc < s.params.Locations; loc++ {
		celt := s.bookkeeper.Table(loc, components.Celt)
		viking := s.bookkeeper.Table(loc, components.Viking)
		writeCells(&row,
			celt.Len() > 0, celt.Total().V2Fraction(),
			viking.Len() > 0, viking.Total().V2Fraction(),
		)
	}
	Logf("%s", row.String())
}

func writeCells(b *strings.Builder, haveCelt bool, celt float64, haveViking bool, viking float64) {
	if haveCelt {
		fmt.Fprintf(b, celtCell, celt)
	} else {
		b.WriteString(celtMissing)
	}
	if haveViking {
		fmt.Fprintf(b, vikingCell, viking)
	} else {
		b.WriteString(vikingMissing)
	}
}
