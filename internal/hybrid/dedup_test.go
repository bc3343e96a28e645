package hybrid

import "testing"

func resultsWith(events []EmergentEvent, alerts []CrisisAlert) *HybridResults {
	return &HybridResults{EmergentEvents: events, CrisisAlerts: alerts}
}

func TestDeduperNoneIsPassThrough(t *testing.T) {
	d := NewDeduper(DedupNone)
	res := resultsWith([]EmergentEvent{{Rule: RuleSocialUnrest, Duration: 4}}, nil)
	d.Record(1, res)
	if got := d.Filter(2, res); got != res {
		t.Fatal("DedupNone should return the input unchanged")
	}
}

func TestDeduperSuppressesWithinDuration(t *testing.T) {
	d := NewDeduper(DedupSuppressActive)
	first := resultsWith(
		[]EmergentEvent{{ID: "e1", Rule: RuleMilitaryOpportunity, Duration: 2}},
		[]CrisisAlert{{ID: "a1", Type: AlertEconomic, WindowForAction: 2}},
	)

	out := d.Filter(5, first)
	if len(out.EmergentEvents) != 1 || len(out.CrisisAlerts) != 1 {
		t.Fatalf("first emission filtered: %+v", out)
	}
	d.Record(5, out)

	again := resultsWith(
		[]EmergentEvent{{ID: "e2", Rule: RuleMilitaryOpportunity, Duration: 2}},
		[]CrisisAlert{{ID: "a2", Type: AlertEconomic, WindowForAction: 2}},
	)
	// Ticks 5 and 6 are covered.
	if out := d.Filter(6, again); len(out.EmergentEvents) != 0 || len(out.CrisisAlerts) != 0 {
		t.Fatalf("tick 6 should be suppressed: %+v", out)
	}
	if out := d.Filter(7, again); len(out.EmergentEvents) != 1 || len(out.CrisisAlerts) != 1 {
		t.Fatalf("tick 7 should emit again: %+v", out)
	}
}

func TestDeduperFilterDoesNotRecord(t *testing.T) {
	d := NewDeduper(DedupSuppressActive)
	res := resultsWith([]EmergentEvent{{Rule: RuleSocialUnrest, Duration: 4}}, nil)

	d.Filter(1, res)
	// Tick 1 was never committed, so tick 2 still emits.
	if out := d.Filter(2, res); len(out.EmergentEvents) != 1 {
		t.Fatalf("events = %d, want 1", len(out.EmergentEvents))
	}
	if len(res.EmergentEvents) != 1 {
		t.Fatal("Filter mutated its input")
	}
}

func TestDeduperOtherRulesUnaffected(t *testing.T) {
	d := NewDeduper(DedupSuppressActive)
	d.Record(1, resultsWith([]EmergentEvent{{Rule: RuleSocialUnrest, Duration: 4}}, nil))

	out := d.Filter(2, resultsWith([]EmergentEvent{
		{Rule: RuleSocialUnrest, Duration: 4},
		{Rule: RuleResearchBreakthrough, Duration: 4},
	}, nil))
	if len(out.EmergentEvents) != 1 || out.EmergentEvents[0].Rule != RuleResearchBreakthrough {
		t.Fatalf("events = %v, want [research_breakthrough]", rulesOf(out.EmergentEvents))
	}
}

func TestParseDedupPolicy(t *testing.T) {
	for in, want := range map[string]DedupPolicy{
		"":                DedupNone,
		"none":            DedupNone,
		"suppress_active": DedupSuppressActive,
	} {
		got, err := ParseDedupPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseDedupPolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDedupPolicy("always"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
