package telemetry

import "github.com/pthm-cable/v2drift/components"

// Counts holds interaction event counters.
type Counts struct {
	Same       int
	Cross      int
	Rejections int
	V2Produced int
	Alerts     int
	Removals   int
	Exhausted  [2]int // deaths by memory exhaustion, indexed by Variant.Index()
	Aged       [2]int // deaths by age, indexed by Variant.Index()
}

// Interactions returns the number of completed interactions.
func (c Counts) Interactions() int {
	return c.Same + c.Cross
}

// Deaths returns the total number of replaced agents.
func (c Counts) Deaths() int {
	return c.Exhausted[0] + c.Exhausted[1] + c.Aged[0] + c.Aged[1]
}

func (c *Counts) add(o Counts) {
	c.Same += o.Same
	c.Cross += o.Cross
	c.Rejections += o.Rejections
	c.V2Produced += o.V2Produced
	c.Alerts += o.Alerts
	c.Removals += o.Removals
	for i := range c.Exhausted {
		c.Exhausted[i] += o.Exhausted[i]
		c.Aged[i] += o.Aged[i]
	}
}

// Collector accumulates events within interaction windows and produces WindowStats.
type Collector struct {
	runID       string
	run         int
	windowSize  int
	windowStart int

	window Counts
	total  Counts
}

// NewCollector creates a collector flushing every windowSize interactions.
func NewCollector(runID string, run, windowSize int) *Collector {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Collector{runID: runID, run: run, windowSize: windowSize}
}

// RecordInteraction records a completed speaker/listener exchange.
func (c *Collector) RecordInteraction(kind InteractionKind) {
	if kind == InteractionCross {
		c.window.Cross++
	} else {
		c.window.Same++
	}
}

// RecordRejections records pairs discarded by the location constraint.
func (c *Collector) RecordRejections(n int) {
	c.window.Rejections += n
}

// RecordSpeech records the outcome of one production.
func (c *Collector) RecordSpeech(v2, alert, removed bool) {
	if v2 {
		c.window.V2Produced++
	}
	if alert {
		c.window.Alerts++
	}
	if removed {
		c.window.Removals++
	}
}

// RecordDeath records an agent replacement.
func (c *Collector) RecordDeath(v components.Variant, cause DeathCause) {
	switch cause {
	case DeathExhausted:
		c.window.Exhausted[v.Index()]++
	case DeathAge:
		c.window.Aged[v.Index()]++
	}
}

// ShouldFlush returns true if the window ending at interaction is complete.
func (c *Collector) ShouldFlush(interaction int) bool {
	return interaction-c.windowStart >= c.windowSize
}

// Flush produces a WindowStats and resets counters for the next window.
// sizes holds the current population sizes indexed by Variant.Index().
func (c *Collector) Flush(interaction int, sizes [2]int, sample AgentSample) WindowStats {
	w := c.window
	stats := WindowStats{
		RunID:       c.runID,
		Run:         c.run,
		WindowStart: c.windowStart,
		WindowEnd:   interaction,

		CeltCount:   sizes[components.Celt.Index()],
		VikingCount: sizes[components.Viking.Index()],

		SameInteractions:  w.Same,
		CrossInteractions: w.Cross,
		PairingRejections: w.Rejections,

		V2Produced: w.V2Produced,
		Alerts:     w.Alerts,
		Removals:   w.Removals,

		CeltExhausted:   w.Exhausted[components.Celt.Index()],
		VikingExhausted: w.Exhausted[components.Viking.Index()],
		CeltAged:        w.Aged[components.Celt.Index()],
		VikingAged:      w.Aged[components.Viking.Index()],
	}
	if n := w.Interactions(); n > 0 {
		stats.V2Rate = float64(w.V2Produced) / float64(n)
	}
	stats.setAgents(sample)

	c.total.add(w)
	c.window = Counts{}
	c.windowStart = interaction

	return stats
}

// Totals returns the counters accumulated over the whole run, including the
// window that has not been flushed yet.
func (c *Collector) Totals() Counts {
	t := c.total
	t.add(c.window)
	return t
}

// WindowSize returns the number of interactions per window.
func (c *Collector) WindowSize() int {
	return c.windowSize
}
