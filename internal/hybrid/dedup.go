package hybrid

import "fmt"

// DedupPolicy decides whether repeated events and alerts are re-emitted.
type DedupPolicy string

const (
	// DedupNone emits every event and alert the rules produce, every tick.
	DedupNone DedupPolicy = "none"
	// DedupSuppressActive drops an event while a prior event from the same
	// rule is still within its duration, and an alert while a prior alert of
	// the same type is still within its window for action.
	DedupSuppressActive DedupPolicy = "suppress_active"
)

// ParseDedupPolicy validates a policy name. Empty means DedupNone.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(s) {
	case "", DedupNone:
		return DedupNone, nil
	case DedupSuppressActive:
		return DedupSuppressActive, nil
	}
	return "", fmt.Errorf("unknown dedup policy %q (use: none, suppress_active)", s)
}

// Deduper remembers which event rules and alert types are still active for a
// single campaign. It is not safe for concurrent use; each campaign owns one.
type Deduper struct {
	policy DedupPolicy
	events map[string]uint64 // rule -> last tick it covers
	alerts map[string]uint64 // alert type -> last tick it covers
}

// NewDeduper returns a Deduper for policy.
func NewDeduper(policy DedupPolicy) *Deduper {
	return &Deduper{
		policy: policy,
		events: make(map[string]uint64),
		alerts: make(map[string]uint64),
	}
}

// Filter returns a copy of res without the entries that are still covered by
// an earlier emission. Neither res nor the Deduper is modified; call Record
// once the tick has been committed.
func (d *Deduper) Filter(tick uint64, res *HybridResults) *HybridResults {
	if d == nil || d.policy != DedupSuppressActive {
		return res
	}

	out := *res
	out.EmergentEvents = []EmergentEvent{}
	for _, e := range res.EmergentEvents {
		if until, ok := d.events[e.Rule]; ok && tick <= until {
			continue
		}
		out.EmergentEvents = append(out.EmergentEvents, e)
	}

	out.CrisisAlerts = []CrisisAlert{}
	for _, a := range res.CrisisAlerts {
		if until, ok := d.alerts[a.Type]; ok && tick <= until {
			continue
		}
		out.CrisisAlerts = append(out.CrisisAlerts, a)
	}
	return &out
}

// Record marks the events and alerts of a committed tick as active.
func (d *Deduper) Record(tick uint64, res *HybridResults) {
	if d == nil || d.policy != DedupSuppressActive {
		return
	}
	for _, e := range res.EmergentEvents {
		d.events[e.Rule] = tick + uint64(max(e.Duration, 1)) - 1
	}
	for _, a := range res.CrisisAlerts {
		d.alerts[a.Type] = tick + uint64(max(a.WindowForAction, 1)) - 1
	}
}
