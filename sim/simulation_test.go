package sim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/grammar"
	"github.com/pthm-cable/v2drift/telemetry"
)

func TestMain(m *testing.M) {
	SetLogWriter(io.Discard)
	os.Exit(m.Run())
}

// testParams returns defaults shrunk for tests, modified by mutate.
func testParams(t *testing.T, mutate func(p *config.Parameters)) *config.Parameters {
	t.Helper()
	p := config.Default()
	p.Interactions = 1000
	p.PrintEvery = 100
	if mutate != nil {
		mutate(p)
	}
	p.Recompute()
	if err := p.Validate(); err != nil {
		t.Fatalf("test parameters invalid: %v", err)
	}
	return p
}

func newSim(t *testing.T, p *config.Parameters, seed int64) *Simulation {
	t.Helper()
	rc, err := LoadRunContext(p)
	if err != nil {
		t.Fatalf("LoadRunContext failed: %v", err)
	}
	s, err := New(p, rc, Options{Seed: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func checkSizes(t *testing.T, s *Simulation, p *config.Parameters) {
	t.Helper()
	if got := len(s.Population(components.Celt)); got != p.Derived.CeltSize {
		t.Fatalf("interaction %d: %d Celts, want %d", s.Interaction(), got, p.Derived.CeltSize)
	}
	if got := len(s.Population(components.Viking)); got != p.Derived.VikingSize {
		t.Fatalf("interaction %d: %d Vikings, want %d", s.Interaction(), got, p.Derived.VikingSize)
	}
}

func TestNewPopulationLayout(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Locations = 3
		p.Population.Celt = []int{2, 0, 3}
		p.Population.Viking = []int{1, 2, 1}
	})
	s := newSim(t, p, 1)

	wantLocs := map[components.Variant][]int{
		components.Celt:   {0, 0, 2, 2, 2},
		components.Viking: {0, 1, 1, 2},
	}
	seen := make(map[uint32]bool)
	for v, locs := range wantLocs {
		pop := s.Population(v)
		if len(pop) != len(locs) {
			t.Fatalf("%s population has %d members, want %d", v, len(pop), len(locs))
		}
		for i, e := range pop {
			o, g, act := s.Agent(e)
			if o.Variant != v || o.Location != locs[i] {
				t.Errorf("%s member %d: variant %s location %d, want location %d", v, i, o.Variant, o.Location, locs[i])
			}
			if g.Exemplars.Len() != p.InitialUtterances {
				t.Errorf("%s member %d holds %d exemplars, want %d", v, i, g.Exemplars.Len(), p.InitialUtterances)
			}
			if act.Age() != 0 {
				t.Errorf("%s member %d starts with age %d", v, i, act.Age())
			}
			if seen[o.ID] {
				t.Errorf("duplicate agent ID %d", o.ID)
			}
			seen[o.ID] = true
		}
	}
}

func TestNoCrossInteractionScenario(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Locations = 1
		p.Population.Celt = []int{10}
		p.Population.Viking = []int{10}
		p.CrossInteraction = 0
		p.Interactions = 1000
		p.Doubt.SigmoidMode = config.SigmoidOff
		p.RemoveExemplars = false
	})
	s := newSim(t, p, 7)

	for i := 1; i <= p.Interactions; i++ {
		in, err := s.Step()
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if in.Kind != telemetry.InteractionSame || in.Speaker.Variant != in.Listener.Variant {
			t.Fatalf("interaction %d crossed populations: %+v", i, in)
		}
		if in.Speaker.ID == in.Listener.ID {
			t.Fatalf("interaction %d: agent %d talked to itself", i, in.Speaker.ID)
		}
		checkSizes(t, s, p)
	}

	counts := s.Counts()
	if counts.Cross != 0 || counts.Same != p.Interactions {
		t.Errorf("counts = %+v, want %d same and 0 cross", counts, p.Interactions)
	}
	if counts.Deaths() != 0 {
		t.Errorf("%d deaths without any death rule", counts.Deaths())
	}
}

func TestPairingConstraints(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Locations = 4
		p.Population.Celt = []int{3, 2, 0, 3}
		p.Population.Viking = []int{2, 0, 3, 2}
		p.CrossInteraction = 0.3
		p.Interactions = 2000
	})
	s := newSim(t, p, 11)

	var cross int
	for i := 1; i <= p.Interactions; i++ {
		in, err := s.Step()
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if in.Speaker.Entity == in.Listener.Entity {
			t.Fatalf("interaction %d: speaker is listener", i)
		}
		if d := in.Speaker.Location - in.Listener.Location; d < -1 || d > 1 {
			t.Fatalf("interaction %d: locations %d and %d are not adjacent", i, in.Speaker.Location, in.Listener.Location)
		}
		sameVariant := in.Speaker.Variant == in.Listener.Variant
		if sameVariant != (in.Kind == telemetry.InteractionSame) {
			t.Fatalf("interaction %d: kind %s with variants %s/%s", i, in.Kind, in.Speaker.Variant, in.Listener.Variant)
		}
		if in.Kind == telemetry.InteractionCross {
			cross++
		}
	}

	if cross == 0 {
		t.Error("no cross interactions with cross_interaction 0.3")
	}
	if s.Counts().Rejections == 0 {
		t.Error("no rejected pairs although locations 0 and 3 are far apart")
	}
}

func TestPairingExhausted(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Locations = 3
		p.Population.Celt = []int{1, 0, 1}
		p.Population.Viking = []int{0, 0, 0}
		p.CrossInteraction = 0
		p.Pairing.MaxAttempts = 50
	})
	s := newSim(t, p, 3)

	_, err := s.Step()
	if !errors.Is(err, ErrPairingExhausted) {
		t.Fatalf("Step error = %v, want ErrPairingExhausted", err)
	}
	if got := s.Counts().Rejections; got != 50 {
		t.Errorf("rejections = %d, want 50", got)
	}
}

func TestAgeDeathScenario(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Death.Mode = config.DeathByAge
		p.Death.After = 5
		p.Interactions = 500
	})
	s := newSim(t, p, 5)

	for i := 1; i <= p.Interactions; i++ {
		in, err := s.Step()
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		for _, d := range in.Deaths {
			if d.Cause != telemetry.DeathAge || d.Spoken+d.Heard < 5 {
				t.Fatalf("interaction %d: unexpected death %+v", i, d)
			}
			if d.AgentID != in.Speaker.ID && d.AgentID != in.Listener.ID {
				t.Fatalf("interaction %d: bystander %d died", i, d.AgentID)
			}
		}
		checkSizes(t, s, p)

		for _, v := range components.Variants {
			for _, e := range s.Population(v) {
				o, _, act := s.Agent(e)
				if act.Age() >= 5 {
					t.Fatalf("interaction %d: %s agent %d still alive at age %d", i, v, o.ID, act.Age())
				}
				if o.BornAt == i && act.Age() != 0 {
					t.Fatalf("interaction %d: newborn %d has age %d", i, o.ID, act.Age())
				}
			}
		}
	}

	if s.Counts().Deaths() == 0 {
		t.Error("no agent died of age")
	}
}

func TestExhaustionDeath(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.RemoveExemplars = true
		p.InitialUtterances = 5
		p.Population.Celt = []int{6}
		p.Population.Viking = []int{6}
		p.CrossInteraction = 0.2
		p.Interactions = 3000
	})
	s := newSim(t, p, 9)

	for i := 1; i <= p.Interactions; i++ {
		in, err := s.Step()
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		for _, d := range in.Deaths {
			if d.Cause != telemetry.DeathExhausted || d.AgentID != in.Speaker.ID || d.Exemplars != 1 {
				t.Fatalf("interaction %d: unexpected death %+v", i, d)
			}
		}
		checkSizes(t, s, p)
	}

	counts := s.Counts()
	if counts.Deaths() == 0 {
		t.Error("no agent ran down to one exemplar")
	}
	if counts.Aged != [2]int{} {
		t.Errorf("age deaths %v with age death off", counts.Aged)
	}
}

func TestReplacedSpeakerNotCheckedForAge(t *testing.T) {
	// Every production matches a stored exemplar, so a two-exemplar speaker
	// always ends at one; with age limit 1 the listener dies of age.
	corpus := grammar.NewFrequencyTable()
	corpus.AddN(grammar.Utterance{Verb: grammar.Vf, Adverb: grammar.Then, V2: true}, 10)

	p := testParams(t, func(p *config.Parameters) {
		p.RemoveExemplars = true
		p.InitialUtterances = 2
		p.Death.Mode = config.DeathByAge
		p.Death.After = 1
		p.Interactions = 50
	})
	s, err := New(p, NewRunContext(p, corpus, corpus), Options{Seed: 2})
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= p.Interactions; i++ {
		in, err := s.Step()
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if len(in.Deaths) != 2 {
			t.Fatalf("interaction %d: %d deaths, want 2", i, len(in.Deaths))
		}
		if d := in.Deaths[0]; d.Cause != telemetry.DeathExhausted || d.AgentID != in.Speaker.ID {
			t.Errorf("interaction %d: first death %+v, want exhausted speaker", i, d)
		}
		if d := in.Deaths[1]; d.Cause != telemetry.DeathAge || d.AgentID != in.Listener.ID {
			t.Errorf("interaction %d: second death %+v, want aged listener", i, d)
		}
		checkSizes(t, s, p)
	}
}

func TestRunReproducible(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Locations = 2
		p.Population.Celt = []int{4, 4}
		p.Population.Viking = []int{3, 5}
		p.RemoveExemplars = true
		p.InitialUtterances = 20
		p.Doubt.SigmoidMode = config.SigmoidBlend
		p.Growth.Vf = 2
		p.Death.Mode = config.DeathByAge
		p.Death.After = 40
		p.Interactions = 1500
	})

	run := func() Result {
		res, err := newSim(t, p, 1234).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return res
	}
	a, b := run(), run()

	if a.Counts != b.Counts {
		t.Errorf("counts differ: %+v vs %+v", a.Counts, b.Counts)
	}
	if len(a.Series) != len(b.Series) || len(a.Series) != p.Interactions {
		t.Fatalf("series lengths %d/%d, want %d", len(a.Series), len(b.Series), p.Interactions)
	}
	for i := range a.Series {
		pa, pb := a.Series[i], b.Series[i]
		if pa.Location != pb.Location || pa.Variant != pb.Variant || pa.V2Fraction != pb.V2Fraction {
			t.Fatalf("series diverges at %d: %+v vs %+v", i, pa, pb)
		}
	}
	for i := range a.Snapshot.Agents {
		if a.Snapshot.Agents[i].Doubt != b.Snapshot.Agents[i].Doubt {
			t.Fatalf("agent %d doubt differs", i)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	s := newSim(t, testParams(t, nil), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestRunWritesOutputs(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Interactions = 250
		p.PrintEvery = 100
		p.Death.Mode = config.DeathByAge
		p.Death.After = 30
	})
	rc, err := LoadRunContext(p)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	om, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(p, rc, Options{Seed: 4, Output: om, Perf: true})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	lines := func(name string) int {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
	}

	if got := lines("series.csv"); got != p.Interactions+1 {
		t.Errorf("series.csv has %d lines, want %d", got, p.Interactions+1)
	}
	// Windows end at 100, 200 and the final partial window at 250.
	if got := lines("telemetry.csv"); got != 4 {
		t.Errorf("telemetry.csv has %d lines, want 4", got)
	}
	if got := lines("perf.csv"); got != 4 {
		t.Errorf("perf.csv has %d lines, want 4", got)
	}
	if got := lines("deaths.csv"); got != res.Counts.Deaths()+1 {
		t.Errorf("deaths.csv has %d lines, want %d", got, res.Counts.Deaths()+1)
	}
	if got := lines("final.csv"); got != len(res.Finals)+1 {
		t.Errorf("final.csv has %d lines, want %d", got, len(res.Finals)+1)
	}

	snap, err := telemetry.LoadSnapshot(filepath.Join(dir, telemetry.SnapshotName(0)))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Agents) != p.Derived.CeltSize+p.Derived.VikingSize {
		t.Errorf("snapshot holds %d agents", len(snap.Agents))
	}
	if snap.RunID != res.RunID || snap.Interaction != p.Interactions {
		t.Errorf("snapshot header = %+v", snap)
	}
}

func TestProgressTable(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetLogWriter(io.Discard)

	p := testParams(t, func(p *config.Parameters) {
		p.Locations = 2
		p.Population.Celt = []int{3, 0}
		p.Population.Viking = []int{0, 3}
		p.CrossInteraction = 0
		p.Interactions = 200
		p.PrintEvery = 100
	})
	if _, err := newSim(t, p, 8).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"--- Run 1 of 1 ---",
		"Fraction of V2 sentences",
		"    #      Celt  Viking    Celt  Viking",
		"-------   ------ ------   ------ ------",
		"   0.0%   0.6450   --       --   0.9445",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("progress output missing %q:\n%s", want, out)
		}
	}

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasSuffix(strings.Fields(line+" x")[0], "%") && !strings.HasPrefix(line, "   0.0%") {
			rows = append(rows, line)
		}
	}
	if len(rows) != 2 || !strings.HasPrefix(rows[0], "  50.0%") || !strings.HasPrefix(rows[1], " 100.0%") {
		t.Fatalf("progress rows = %q", rows)
	}
	for _, row := range rows {
		if strings.Count(row, "--") != 2 {
			t.Errorf("row %q should mark both empty location cells", row)
		}
	}
}

func TestProgressTableParallelPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetLogWriter(io.Discard)

	p := testParams(t, func(p *config.Parameters) {
		p.Runs = 2
		p.Workers = 2
		p.Interactions = 200
		p.PrintEvery = 100
	})
	rc, err := LoadRunContext(p)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(p, rc, Options{Seed: 3, Run: 1, Runs: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var tagged int
	for _, line := range strings.Split(buf.String(), "\n") {
		if line == "" || strings.HasPrefix(line, "--- Run") || line == "Fraction of V2 sentences" {
			continue
		}
		if !strings.HasPrefix(line, "[run 2] ") {
			t.Errorf("table line %q lacks the run tag", line)
		}
		tagged++
	}
	// header, rule, corpus row and two progress rows
	if tagged != 5 {
		t.Errorf("got %d tagged lines, want 5:\n%s", tagged, buf.String())
	}
}
