package hybrid

import (
	"testing"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

func TestDetectAlertsEconomic(t *testing.T) {
	det, nl := calmTick()
	det.Economic.GDPGrowth = -12
	det.Economic.Unemployment = 25

	got := DetectAlerts(DefaultRules(), seqIDs(), det, nl, campaign.SentimentModifiers{})
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want 1", len(got))
	}
	a := got[0]
	if a.Type != AlertEconomic || a.Severity != "critical" {
		t.Fatalf("alert = %s/%s, want economic/critical", a.Type, a.Severity)
	}
	if a.TimeToImpact != 1 || a.WindowForAction != 2 {
		t.Fatalf("timing = %d/%d, want 1/2", a.TimeToImpact, a.WindowForAction)
	}
}

func TestDetectAlertsEitherEconomicConditionSuffices(t *testing.T) {
	for _, tc := range []struct {
		gdp, unemployment float64
	}{
		{-10.5, 5},
		{2, 21},
	} {
		det, nl := calmTick()
		det.Economic.GDPGrowth = tc.gdp
		det.Economic.Unemployment = tc.unemployment
		if got := DetectAlerts(DefaultRules(), seqIDs(), det, nl, campaign.SentimentModifiers{}); len(got) != 1 {
			t.Fatalf("gdp %v unemployment %v: alerts = %d, want 1", tc.gdp, tc.unemployment, len(got))
		}
	}
}

func TestDetectAlertsMildDownturnIsQuiet(t *testing.T) {
	det, nl := calmTick()
	det.Economic.GDPGrowth = -1
	if got := DetectAlerts(DefaultRules(), seqIDs(), det, nl, campaign.SentimentModifiers{}); len(got) != 0 {
		t.Fatalf("alerts = %+v, want none", got)
	}
}

func TestDetectAlertsSocial(t *testing.T) {
	det, nl := calmTick()
	nl.PopulationMood.Overall = MoodRebellious

	// -0.35 fires the unrest event but not the stricter alert.
	if got := DetectAlerts(DefaultRules(), seqIDs(), det, nl, campaign.SentimentModifiers{TaxCompliance: -0.35}); len(got) != 0 {
		t.Fatalf("alerts = %+v, want none", got)
	}

	got := DetectAlerts(DefaultRules(), seqIDs(), det, nl, campaign.SentimentModifiers{TaxCompliance: -0.45})
	if len(got) != 1 || got[0].Type != AlertSocial || got[0].Severity != "serious" {
		t.Fatalf("alerts = %+v, want one serious social alert", got)
	}
	if got[0].WindowForAction != 3 {
		t.Fatalf("window = %d, want 3", got[0].WindowForAction)
	}
}

func TestDetectAlertsIsDeterministic(t *testing.T) {
	det, nl := calmTick()
	det.Economic.GDPGrowth = -15
	nl.PopulationMood.Overall = MoodRebellious
	m := campaign.SentimentModifiers{TaxCompliance: -0.5}

	a := DetectAlerts(DefaultRules(), seqIDs(), det, nl, m)
	b := DetectAlerts(DefaultRules(), seqIDs(), det, nl, m)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("alerts = %d and %d, want 2 each", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Type != b[i].Type || a[i].Causes[0] != b[i].Causes[0] {
			t.Fatalf("alert %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
