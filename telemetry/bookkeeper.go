package telemetry

import (
	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/grammar"
)

// SeriesPoint is one entry of a running V2-fraction series.
type SeriesPoint struct {
	RunID       string             `csv:"run_id"`
	Run         int                `csv:"run"`
	Interaction int                `csv:"interaction"`
	Location    int                `csv:"location"`
	Variant     components.Variant `csv:"variant"`
	V2Fraction  float64            `csv:"v2_fraction"`
}

// FinalFraction is the end-of-run V2 fraction of one location and variant.
type FinalFraction struct {
	RunID      string             `csv:"run_id"`
	Run        int                `csv:"run"`
	Location   int                `csv:"location"`
	Variant    components.Variant `csv:"variant"`
	Utterances int                `csv:"utterances"`
	V2Fraction float64            `csv:"v2_fraction"`
}

// Bookkeeper accumulates every produced utterance into a running frequency
// table per location and speaker variant, and records the running V2 fraction
// after each interaction.
type Bookkeeper struct {
	runID  string
	run    int
	tables [][2]*grammar.FrequencyTable
	series []SeriesPoint
}

// NewBookkeeper creates an empty bookkeeper for the given number of locations.
func NewBookkeeper(runID string, run, locations int) *Bookkeeper {
	tables := make([][2]*grammar.FrequencyTable, locations)
	for i := range tables {
		tables[i] = [2]*grammar.FrequencyTable{grammar.NewFrequencyTable(), grammar.NewFrequencyTable()}
	}
	return &Bookkeeper{runID: runID, run: run, tables: tables}
}

// Record adds u to the table of (location, variant), appends the resulting
// running fraction to the series and returns it.
func (b *Bookkeeper) Record(interaction, location int, variant components.Variant, u grammar.Utterance) float64 {
	t := b.tables[location][variant.Index()]
	t.Add(u)
	frac := t.Total().V2Fraction()
	b.series = append(b.series, SeriesPoint{
		RunID:       b.runID,
		Run:         b.run,
		Interaction: interaction,
		Location:    location,
		Variant:     variant,
		V2Fraction:  frac,
	})
	return frac
}

// Table returns the running table of (location, variant).
func (b *Bookkeeper) Table(location int, variant components.Variant) *grammar.FrequencyTable {
	return b.tables[location][variant.Index()]
}

// Fraction returns the running V2 fraction of (location, variant). It is 0
// until that location and variant has spoken.
func (b *Bookkeeper) Fraction(location int, variant components.Variant) float64 {
	return b.Table(location, variant).Total().V2Fraction()
}

// Locations returns the number of tracked locations.
func (b *Bookkeeper) Locations() int {
	return len(b.tables)
}

// Series returns every recorded point in interaction order.
func (b *Bookkeeper) Series() []SeriesPoint {
	return b.series
}

// Finals returns the current fraction of every location and variant that has
// produced at least one utterance.
func (b *Bookkeeper) Finals() []FinalFraction {
	var out []FinalFraction
	for loc := range b.tables {
		for _, v := range components.Variants {
			t := b.Table(loc, v)
			if t.Len() == 0 {
				continue
			}
			out = append(out, FinalFraction{
				RunID:      b.runID,
				Run:        b.run,
				Location:   loc,
				Variant:    v,
				Utterances: t.Len(),
				V2Fraction: t.Total().V2Fraction(),
			})
		}
	}
	return out
}
