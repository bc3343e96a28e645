package campaign

import (
	"errors"
	"testing"
)

func offeringState() State {
	s := NewState("c1", 7)
	s.Tick = 4
	s.OpenEvents = []OpenEvent{{
		ID:        "e1",
		Title:     "Economic Crisis Unfolds",
		ExpiresAt: 8,
		Choices: []OfferedChoice{
			{ID: "stimulus", Cost: map[string]int64{ResourceCredits: 50000}, Consequences: []Effect{{Target: "economic", Modifier: 0.15, RemainingTicks: 2}}},
			{ID: "austerity", Consequences: []Effect{{Target: "population", Modifier: -0.2, RemainingTicks: 3}}},
		},
	}}
	s.OpenPolicies = []OpenPolicy{{ID: "r1", Category: "economic", Cost: map[string]int64{ResourceCredits: 10000}, ExpiresAt: 6}}
	return s
}

func TestCheckOffer(t *testing.T) {
	s := offeringState()

	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"open choice", ResolveEvent{EventID: "e1", ChoiceID: "stimulus"}, false},
		{"unknown event", ResolveEvent{EventID: "made-up", ChoiceID: "stimulus"}, true},
		{"unknown choice", ResolveEvent{EventID: "e1", ChoiceID: "free_money"}, true},
		{"open policy", AdoptPolicy{RecommendationID: "r1"}, false},
		{"unknown policy", AdoptPolicy{RecommendationID: "r9"}, true},
		{"no offer involved", SetTaxPolicy{Rate: 0.2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CheckOffer(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, ErrOfferClosed) {
					t.Fatalf("CheckOffer() = %v, want ErrOfferClosed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckOffer() = %v", err)
			}
		})
	}
}

func TestCloseAndPruneOffers(t *testing.T) {
	s := offeringState()
	s.CloseEvent("e1")
	if err := s.CheckOffer(ResolveEvent{EventID: "e1", ChoiceID: "stimulus"}); !errors.Is(err, ErrOfferClosed) {
		t.Fatalf("answered event still open: %v", err)
	}

	s = offeringState()
	s.PruneOffers(4)
	if len(s.OpenEvents) != 1 || len(s.OpenPolicies) != 1 {
		t.Fatalf("offers pruned too early: %+v %+v", s.OpenEvents, s.OpenPolicies)
	}
	// The policy is answerable through tick 5 only.
	s.PruneOffers(5)
	if len(s.OpenPolicies) != 0 || len(s.OpenEvents) != 1 {
		t.Fatalf("after tick 5: events %d policies %d, want 1 and 0", len(s.OpenEvents), len(s.OpenPolicies))
	}
}

func TestCloneCopiesOffers(t *testing.T) {
	s := offeringState()
	c := s.Clone()
	c.OpenEvents[0].Choices[0].Cost[ResourceCredits] = 0
	c.OpenEvents[0].Choices[0].Consequences[0].Modifier = 10
	c.OpenPolicies[0].Cost[ResourceCredits] = 0

	choice, err := s.EventChoice("e1", "stimulus")
	if err != nil {
		t.Fatal(err)
	}
	if choice.Cost[ResourceCredits] != 50000 || choice.Consequences[0].Modifier != 0.15 {
		t.Fatalf("clone shares the offered choice: %+v", choice)
	}
	if s.OpenPolicies[0].Cost[ResourceCredits] != 10000 {
		t.Fatal("clone shares the policy cost")
	}
}
