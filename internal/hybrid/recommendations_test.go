package hybrid

import (
	"strings"
	"testing"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

func TestRecommendCalmTickIsQuiet(t *testing.T) {
	det, _ := calmTick()
	if got := Recommend(DefaultRules(), seqIDs(), det); len(got) != 0 {
		t.Fatalf("recommendations = %+v, want none", got)
	}
}

func TestRecommendAllThree(t *testing.T) {
	det, _ := calmTick()
	det.Economic.Unemployment = 14
	det.Military.ReadinessLevel = 0.3
	det.Research.ResearchEfficiency = 0.4

	got := Recommend(DefaultRules(), seqIDs(), det)
	if len(got) != 3 {
		t.Fatalf("recommendations = %d, want 3", len(got))
	}

	want := []struct {
		category string
		priority campaign.Priority
		credits  int64
	}{
		{"economic", campaign.PriorityHigh, 10000},
		{"military", campaign.PriorityMedium, 15000},
		{"research", campaign.PriorityMedium, 12000},
	}
	for i, w := range want {
		r := got[i]
		if r.Category != w.category || r.Priority != w.priority {
			t.Fatalf("rec %d = %s/%s, want %s/%s", i, r.Category, r.Priority, w.category, w.priority)
		}
		if r.ResourceRequirements[campaign.ResourceCredits] != w.credits {
			t.Fatalf("rec %d credits = %d, want %d", i, r.ResourceRequirements[campaign.ResourceCredits], w.credits)
		}
	}
	if !strings.Contains(got[0].Rationale[0], "14.0%") {
		t.Fatalf("rationale = %q", got[0].Rationale[0])
	}
}

func TestRecommendTreasuryNote(t *testing.T) {
	det, _ := calmTick()
	det.Economic.Unemployment = 12
	det.CampaignState.Resources[campaign.ResourceCredits] = 4500

	got := Recommend(DefaultRules(), seqIDs(), det)
	note := got[0].Rationale[len(got[0].Rationale)-1]
	if note != "Treasury of 4,500 credits cannot yet cover the 10,000 required" {
		t.Fatalf("note = %q", note)
	}
}
