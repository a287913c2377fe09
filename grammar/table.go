package grammar

import "math/rand"

// Slice holds the V2 / non-V2 counts of one feature value (or of the whole table).
type Slice struct {
	V2    int
	NonV2 int
}

// Total returns the number of exemplars in the slice.
func (s Slice) Total() int {
	return s.V2 + s.NonV2
}

// V2Fraction returns the share of V2 exemplars. An empty slice yields 0.
func (s Slice) V2Fraction() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.V2) / float64(total)
}

func (s *Slice) add(other Slice) {
	s.V2 += other.V2
	s.NonV2 += other.NonV2
}

// FrequencyTable counts exemplars per (verb, adverb, V2) combination.
// The zero value is an empty, ready to use table.
type FrequencyTable struct {
	counts [2][2][2]int // [verb][adverb][v2]
	total  int
}

// NewFrequencyTable returns an empty table.
func NewFrequencyTable() *FrequencyTable {
	return &FrequencyTable{}
}

func v2Index(v2 bool) int {
	if v2 {
		return 1
	}
	return 0
}

// Add stores one occurrence of u.
func (t *FrequencyTable) Add(u Utterance) {
	t.AddN(u, 1)
}

// AddN stores n occurrences of u. Non-positive n is ignored.
func (t *FrequencyTable) AddN(u Utterance, n int) {
	if n <= 0 {
		return
	}
	t.counts[u.Verb][u.Adverb][v2Index(u.V2)] += n
	t.total += n
}

// Remove deletes one occurrence with exactly u's features.
// It reports whether a matching exemplar was present.
func (t *FrequencyTable) Remove(u Utterance) bool {
	c := &t.counts[u.Verb][u.Adverb][v2Index(u.V2)]
	if *c == 0 {
		return false
	}
	*c--
	t.total--
	return true
}

// Count returns how many exemplars match u exactly.
func (t *FrequencyTable) Count(u Utterance) int {
	return t.counts[u.Verb][u.Adverb][v2Index(u.V2)]
}

// Len returns the grand exemplar count.
func (t *FrequencyTable) Len() int {
	return t.total
}

// RandomExemplar draws a stored exemplar with probability proportional to its
// count. ok is false when the table is empty.
func (t *FrequencyTable) RandomExemplar(rng *rand.Rand) (u Utterance, ok bool) {
	if t.total == 0 {
		return Utterance{}, false
	}
	r := rng.Intn(t.total)
	for _, v := range Verbs {
		for _, a := range Adverbs {
			for i, v2 := range [2]bool{false, true} {
				r -= t.counts[v][a][i]
				if r < 0 {
					return Utterance{Verb: v, Adverb: a, V2: v2}, true
				}
			}
		}
	}
	// Unreachable while total matches the counts.
	return Utterance{}, false
}

// RandomUtterance draws an utterance distributed like the table's contents.
// It is the sampling primitive used when seeding agents from a historical corpus.
func (t *FrequencyTable) RandomUtterance(rng *rand.Rand) (Utterance, bool) {
	return t.RandomExemplar(rng)
}

// VerbSlice returns the counts of every exemplar with verb form v.
func (t *FrequencyTable) VerbSlice(v Verb) Slice {
	var s Slice
	for _, a := range Adverbs {
		s.add(Slice{NonV2: t.counts[v][a][0], V2: t.counts[v][a][1]})
	}
	return s
}

// AdverbSlice returns the counts of every exemplar with adverb form a.
func (t *FrequencyTable) AdverbSlice(a Adverb) Slice {
	var s Slice
	for _, v := range Verbs {
		s.add(Slice{NonV2: t.counts[v][a][0], V2: t.counts[v][a][1]})
	}
	return s
}

// Vf returns the finite-verb slice.
func (t *FrequencyTable) Vf() Slice { return t.VerbSlice(Vf) }

// Aux returns the auxiliary slice.
func (t *FrequencyTable) Aux() Slice { return t.VerbSlice(Aux) }

// Then returns the THEN-adverb slice.
func (t *FrequencyTable) Then() Slice { return t.AdverbSlice(Then) }

// AdvO returns the other-adverbial slice.
func (t *FrequencyTable) AdvO() Slice { return t.AdverbSlice(AdvO) }

// Total returns the aggregate over all exemplars.
func (t *FrequencyTable) Total() Slice {
	var s Slice
	for _, v := range Verbs {
		s.add(t.VerbSlice(v))
	}
	return s
}

// Merge adds every exemplar of other into t.
func (t *FrequencyTable) Merge(other *FrequencyTable) {
	for _, v := range Verbs {
		for _, a := range Adverbs {
			for i, v2 := range [2]bool{false, true} {
				t.AddN(Utterance{Verb: v, Adverb: a, V2: v2}, other.counts[v][a][i])
			}
		}
	}
}

// Clone returns an independent copy of t.
func (t *FrequencyTable) Clone() *FrequencyTable {
	c := *t
	return &c
}
