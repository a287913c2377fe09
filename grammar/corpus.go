package grammar

import (
	"embed"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
)

// CorpusRow is one line of a historical frequency file:
//
//	verb,adverb,v2,count
//	Vf,THEN,true,412
type CorpusRow struct {
	Verb   Verb   `csv:"verb"`
	Adverb Adverb `csv:"adverb"`
	V2     bool   `csv:"v2"`
	Count  int    `csv:"count"`
}

// ReadCorpus loads a historical frequency CSV into a FrequencyTable.
// Repeated feature combinations are summed.
func ReadCorpus(path string) (*FrequencyTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	t, err := DecodeCorpus(f)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return t, nil
}

// DecodeCorpus parses corpus CSV from r.
func DecodeCorpus(r io.Reader) (*FrequencyTable, error) {
	var rows []CorpusRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing corpus: %w", err)
	}
	return TableFromRows(rows)
}

//go:embed corpora/*.csv
var builtin embed.FS

// BuiltinCorpus returns the bundled corpus with the given name ("celt" or
// "viking"), used when no corpus file is configured.
func BuiltinCorpus(name string) (*FrequencyTable, error) {
	f, err := builtin.Open("corpora/" + name + ".csv")
	if err != nil {
		return nil, fmt.Errorf("no built-in corpus %q", name)
	}
	defer f.Close()
	return DecodeCorpus(f)
}

// LoadCorpus reads path, or the built-in corpus name when path is empty.
func LoadCorpus(path, name string) (*FrequencyTable, error) {
	if path == "" {
		return BuiltinCorpus(name)
	}
	return ReadCorpus(path)
}

// TableFromRows builds a table from corpus rows, rejecting negative counts
// and corpora without any exemplar.
func TableFromRows(rows []CorpusRow) (*FrequencyTable, error) {
	t := NewFrequencyTable()
	for i, row := range rows {
		if row.Count < 0 {
			return nil, fmt.Errorf("corpus row %d: negative count %d", i+1, row.Count)
		}
		t.AddN(Utterance{Verb: row.Verb, Adverb: row.Adverb, V2: row.V2}, row.Count)
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("corpus holds no exemplars")
	}
	return t, nil
}

// Rows flattens the table into one row per feature combination.
func (t *FrequencyTable) Rows() []CorpusRow {
	rows := make([]CorpusRow, 0, 8)
	for _, v := range Verbs {
		for _, a := range Adverbs {
			for _, v2 := range [2]bool{false, true} {
				u := Utterance{Verb: v, Adverb: a, V2: v2}
				rows = append(rows, CorpusRow{Verb: v, Adverb: a, V2: v2, Count: t.Count(u)})
			}
		}
	}
	return rows
}

// WriteCorpus saves t in the format ReadCorpus accepts.
func WriteCorpus(path string, t *FrequencyTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating corpus file: %w", err)
	}
	if err := gocsv.MarshalFile(t.Rows(), f); err != nil {
		f.Close()
		return fmt.Errorf("writing corpus: %w", err)
	}
	return f.Close()
}
