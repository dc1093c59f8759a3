package match

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spigell/leads/internal/ai"
	"github.com/spigell/leads/internal/jobs"
	"github.com/spigell/leads/internal/profile"
)

func TestClassifyThresholds(t *testing.T) {
	t.Parallel()

	prefs := &profile.Preferences{IndustriesToAvoid: []string{"gambling"}}

	tests := []struct {
		name       string
		assessment ai.Assessment
		want       Tier
	}{
		{name: "high confidence excellent fit", assessment: ai.Assessment{Confidence: 9, IndustryFit: "excellent"}, want: TierHigh},
		{name: "good fit at threshold", assessment: ai.Assessment{Confidence: 8, IndustryFit: "Good"}, want: TierHigh},
		{name: "medium confidence neutral fit", assessment: ai.Assessment{Confidence: 6, IndustryFit: "neutral"}, want: TierMedium},
		{name: "high confidence neutral fit", assessment: ai.Assessment{Confidence: 9, IndustryFit: "neutral"}, want: TierMedium},
		{name: "low confidence", assessment: ai.Assessment{Confidence: 3}, want: TierLow},
		{name: "low confidence excellent fit", assessment: ai.Assessment{Confidence: 3, IndustryFit: "excellent"}, want: TierLow},
		{name: "poor fit", assessment: ai.Assessment{Confidence: 7, IndustryFit: "poor"}, want: TierLow},
		{name: "avoid label caps tier", assessment: ai.Assessment{Confidence: 9, IndustryFit: "avoid"}, want: TierMedium},
		{name: "avoided industry caps tier", assessment: ai.Assessment{Confidence: 9, IndustryFit: "excellent", Industry: "Online Gambling"}, want: TierMedium},
		{name: "avoided industry keeps low", assessment: ai.Assessment{Confidence: 2, Industry: "gambling"}, want: TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(&tt.assessment, prefs, DefaultPolicy()); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	a := &ai.Assessment{Confidence: 7, IndustryFit: "good"}
	first := Classify(a, nil, DefaultPolicy())
	for i := 0; i < 10; i++ {
		if got := Classify(a, nil, DefaultPolicy()); got != first {
			t.Fatalf("classification changed between calls")
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy must be valid: %v", err)
	}
	if err := (Policy{HighMinConfidence: 4, MediumMinConfidence: 6}).Validate(); err == nil {
		t.Fatalf("expected inverted thresholds to fail")
	}
	if err := (Policy{HighMinConfidence: 11, MediumMinConfidence: 5}).Validate(); err == nil {
		t.Fatalf("expected out of range threshold to fail")
	}
}

func TestTierText(t *testing.T) {
	data, err := json.Marshal(map[string]Tier{"tier": TierHigh})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"tier":"High"}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var decoded map[string]Tier
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["tier"] != TierHigh {
		t.Fatalf("unexpected tier: %v", decoded["tier"])
	}

	if _, err := ParseTier("urgent"); err == nil {
		t.Fatalf("expected unknown tier error")
	}
}

func result(id string, tier Tier, confidence int, posted time.Time) Result {
	return Result{
		Posting:    &jobs.Posting{ID: id, PostedAt: posted},
		Assessment: ai.Assessment{Confidence: confidence},
		Tier:       tier,
	}
}

func TestRankOrdering(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	input := []Result{
		result("low", TierLow, 9, t0),
		result("medium", TierMedium, 6, t0),
		result("high-older", TierHigh, 8, t0),
		result("high-newer", TierHigh, 8, t0.Add(time.Hour)),
		result("high-confident", TierHigh, 10, t0),
	}

	ranked := Rank(input)

	want := []string{"high-confident", "high-newer", "high-older", "medium", "low"}
	for i, id := range want {
		if ranked[i].Posting.ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, ranked[i].Posting.ID)
		}
	}

	if input[0].Posting.ID != "low" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestRankIsStable(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	input := []Result{
		result("first", TierHigh, 8, ts),
		result("medium", TierMedium, 5, ts),
		result("second", TierHigh, 8, ts),
		result("third", TierHigh, 8, ts),
	}

	for run := 0; run < 5; run++ {
		ranked := Rank(input)
		got := []string{ranked[0].Posting.ID, ranked[1].Posting.ID, ranked[2].Posting.ID}
		want := []string{"first", "second", "third"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("run %d: expected %v, got %v", run, want, got)
			}
		}
	}
}

func TestCountByTier(t *testing.T) {
	counts := CountByTier([]Result{
		result("a", TierHigh, 9, time.Time{}),
		result("b", TierLow, 2, time.Time{}),
		result("c", TierLow, 1, time.Time{}),
	})

	if counts[TierHigh] != 1 || counts[TierMedium] != 0 || counts[TierLow] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
