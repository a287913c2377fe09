// Package grammar provides the utterance and exemplar-frequency primitives
// the agents store, sample and exchange.
package grammar

import "fmt"

// Verb is the verb form of an utterance.
type Verb uint8

const (
	Vf  Verb = iota // finite lexical verb
	Aux             // auxiliary
)

// Adverb is the clause-initial adverbial of an utterance.
type Adverb uint8

const (
	Then Adverb = iota // "then"-type adverb
	AdvO               // other adverbial
)

// Verbs lists all verb forms in table order.
var Verbs = [...]Verb{Vf, Aux}

// Adverbs lists all adverb forms in table order.
var Adverbs = [...]Adverb{Then, AdvO}

func (v Verb) String() string {
	switch v {
	case Vf:
		return "Vf"
	case Aux:
		return "Aux"
	default:
		return fmt.Sprintf("Verb(%d)", uint8(v))
	}
}

// ParseVerb maps a feature name to a Verb.
func ParseVerb(s string) (Verb, error) {
	switch s {
	case "Vf":
		return Vf, nil
	case "Aux":
		return Aux, nil
	}
	return 0, fmt.Errorf("unknown verb form %q", s)
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (v Verb) MarshalCSV() (string, error) {
	if v > Aux {
		return "", fmt.Errorf("unknown verb form %d", uint8(v))
	}
	return v.String(), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (v *Verb) UnmarshalCSV(s string) error {
	parsed, err := ParseVerb(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (a Adverb) String() string {
	switch a {
	case Then:
		return "THEN"
	case AdvO:
		return "AdvO"
	default:
		return fmt.Sprintf("Adverb(%d)", uint8(a))
	}
}

// ParseAdverb maps a feature name to an Adverb.
func ParseAdverb(s string) (Adverb, error) {
	switch s {
	case "THEN":
		return Then, nil
	case "AdvO":
		return AdvO, nil
	}
	return 0, fmt.Errorf("unknown adverb form %q", s)
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (a Adverb) MarshalCSV() (string, error) {
	if a > AdvO {
		return "", fmt.Errorf("unknown adverb form %d", uint8(a))
	}
	return a.String(), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (a *Adverb) UnmarshalCSV(s string) error {
	parsed, err := ParseAdverb(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Utterance is a single linguistic event. Values are immutable by convention;
// producing a new word order means building a new Utterance.
type Utterance struct {
	Verb   Verb
	Adverb Adverb
	V2     bool
}

// WithV2 returns the utterance's verb/adverb features with the given order.
func (u Utterance) WithV2(v2 bool) Utterance {
	return Utterance{Verb: u.Verb, Adverb: u.Adverb, V2: v2}
}

func (u Utterance) String() string {
	order := "nonV2"
	if u.V2 {
		order = "V2"
	}
	return u.Adverb.String() + "-" + u.Verb.String() + "-" + order
}
