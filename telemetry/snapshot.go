package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/grammar"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the agent states at the end of a run.
type Snapshot struct {
	Version     int    `json:"version"`
	RunID       string `json:"run_id"`
	Run         int    `json:"run"`
	Seed        int64  `json:"seed"`
	Interaction int    `json:"interaction"`

	Agents []AgentState `json:"agents"`
}

// AgentState holds one agent's complete state.
type AgentState struct {
	ID       uint32             `json:"id"`
	Variant  components.Variant `json:"variant"`
	Location int                `json:"location"`
	BornAt   int                `json:"born_at"`

	Doubt  float64 `json:"doubt"`
	Spoken int     `json:"spoken"`
	Heard  int     `json:"heard"`

	// Exemplar counts keyed by utterance, zero counts omitted
	Exemplars  map[string]int `json:"exemplars"`
	V2Fraction float64        `json:"v2_fraction"`
}

// NewAgentState captures an agent from its components.
func NewAgentState(id uint32, o components.Origin, g components.Grammar, act components.Activity) AgentState {
	exemplars := make(map[string]int)
	for _, row := range g.Exemplars.Rows() {
		if row.Count == 0 {
			continue
		}
		u := grammar.Utterance{Verb: row.Verb, Adverb: row.Adverb, V2: row.V2}
		exemplars[u.String()] = row.Count
	}
	return AgentState{
		ID:         id,
		Variant:    o.Variant,
		Location:   o.Location,
		BornAt:     o.BornAt,
		Doubt:      g.Doubt,
		Spoken:     act.Spoken,
		Heard:      act.Heard,
		Exemplars:  exemplars,
		V2Fraction: g.Exemplars.Total().V2Fraction(),
	}
}

// SnapshotName returns the file name a snapshot is saved under.
func SnapshotName(run int) string {
	return fmt.Sprintf("snapshot_run%d.json", run)
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, SnapshotName(snapshot.Run))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
