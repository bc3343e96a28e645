package steward

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

const (
	maxRecords    = 20
	promptRecords = 5 // how many recent records to include in the model prompt
)

// CycleRecord captures what happened in a single steward cycle.
type CycleRecord struct {
	CampaignID       string `json:"campaign_id"`
	Tick             uint64 `json:"tick"`
	Level            string `json:"crisis_level"`
	Action           string `json:"action"`
	EventID          string `json:"event_id,omitempty"`
	ChoiceID         string `json:"choice_id,omitempty"`
	RecommendationID string `json:"recommendation_id,omitempty"`
	Rationale        string `json:"rationale,omitempty"`
	Chronicle        string `json:"chronicle,omitempty"`
	DryRun           bool   `json:"dry_run,omitempty"`
}

// CycleMemory keeps recent cycle records, persisted as JSON at Path.
type CycleMemory struct {
	Path    string        `json:"-"`
	Records []CycleRecord `json:"records"`
}

// LoadMemory reads the memory file from disk. Returns empty memory if not found.
func LoadMemory(path string) *CycleMemory {
	mem := &CycleMemory{Path: path}
	if path == "" {
		return mem
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mem
	}
	if err := json.Unmarshal(data, mem); err != nil {
		slog.Warn("steward memory corrupted, starting fresh", "error", err)
		return &CycleMemory{Path: path}
	}
	return mem
}

// Save writes the memory to disk. Memory without a path lives only in process.
func (m *CycleMemory) Save() {
	if m.Path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal steward memory", "error", err)
		return
	}
	if err := os.WriteFile(m.Path, data, 0644); err != nil {
		slog.Error("failed to write steward memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Handled reports whether a recorded, non-dry-run cycle already answered the event.
func (m *CycleMemory) Handled(eventID string) bool {
	return slices.ContainsFunc(m.Records, func(r CycleRecord) bool {
		return r.EventID == eventID && !r.DryRun
	})
}

// FormatForPrompt summarizes the campaign's last few cycles for the model prompt.
func (m *CycleMemory) FormatForPrompt(campaignID string) string {
	var recent []CycleRecord
	for _, r := range m.Records {
		if r.CampaignID == campaignID {
			recent = append(recent, r)
		}
	}
	if len(recent) == 0 {
		return ""
	}
	if len(recent) > promptRecords {
		recent = recent[len(recent)-promptRecords:]
	}

	var b strings.Builder
	b.WriteString("## Recent Steward Cycles\n")
	for _, r := range recent {
		fmt.Fprintf(&b, "- Tick %d: crisis=%s, action=%s", r.Tick, r.Level, r.Action)
		if r.ChoiceID != "" {
			fmt.Fprintf(&b, ", choice=%s", r.ChoiceID)
		}
		if r.RecommendationID != "" {
			fmt.Fprintf(&b, ", recommendation=%s", r.RecommendationID)
		}
		b.WriteString("\n")
	}
	return b.String()
}
