package sim

import "log/slog"

// flushTelemetry closes the current stats window and writes it out.
func (s *Simulation) flushTelemetry() {
	s.sampleAgents()

	sizes := [2]int{len(s.pops[0]), len(s.pops[1])}
	stats := s.collector.Flush(s.interaction, sizes, s.sample)

	if s.opts.LogStats {
		stats.LogStats()
	}
	if err := s.output.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}

	if s.perf != nil {
		perfStats := s.perf.Stats()
		if s.opts.LogStats {
			slog.Info("perf", "run_id", s.runID, "window_end", s.interaction, "perf", perfStats)
		}
		if err := s.output.WritePerf(perfStats, s.runID, s.interaction); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

// sampleAgents collects doubt and memory V2 share of every live agent.
func (s *Simulation) sampleAgents() {
	s.sample.Reset()

	query := s.agentFilter.Query()
	for query.Next() {
		origin, g, _ := query.Get()
		s.sample.Add(origin.Variant, g.Doubt, g.Exemplars.Total().V2Fraction())
	}
}
