package models

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusActive, StatusAcknowledged, true},
		{StatusActive, StatusClosed, true},
		{StatusAcknowledged, StatusClosed, true},
		{StatusAcknowledged, StatusActive, false},
		{StatusClosed, StatusActive, false},
		{StatusClosed, StatusAcknowledged, false},
		{StatusActive, StatusActive, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestFingerprintDependsOnActorPatternAndEvents(t *testing.T) {
	base := Correlation{
		ActorID:         "u1",
		PatternID:       "brute_force",
		MatchedEventIDs: []string{"e1", "e2"},
	}

	same := base
	if base.Fingerprint() != same.Fingerprint() {
		t.Fatalf("identical correlations must share a fingerprint")
	}

	otherActor := base
	otherActor.ActorID = "u2"
	if base.Fingerprint() == otherActor.Fingerprint() {
		t.Fatalf("fingerprint must vary by actor")
	}

	otherPattern := base
	otherPattern.PatternID = "credential_stuffing"
	if base.Fingerprint() == otherPattern.Fingerprint() {
		t.Fatalf("fingerprint must vary by pattern")
	}

	otherEvents := base
	otherEvents.MatchedEventIDs = []string{"e1", "e3"}
	if base.Fingerprint() == otherEvents.Fingerprint() {
		t.Fatalf("fingerprint must vary by matched events")
	}
}
