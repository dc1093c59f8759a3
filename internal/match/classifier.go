// Package match turns analyzer assessments into tiers and orders them for presentation.
package match

import (
	"fmt"
	"strings"

	"github.com/spigell/leads/internal/ai"
	"github.com/spigell/leads/internal/profile"
)

type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

var tierNames = map[Tier]string{
	TierLow:    "Low",
	TierMedium: "Medium",
	TierHigh:   "High",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseTier(s string) (Tier, error) {
	for tier, name := range tierNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return tier, nil
		}
	}
	return TierLow, fmt.Errorf("unknown tier %q", s)
}

// Policy holds the confidence thresholds for each tier.
type Policy struct {
	HighMinConfidence   int `mapstructure:"high-min-confidence"`
	MediumMinConfidence int `mapstructure:"medium-min-confidence"`
}

func DefaultPolicy() Policy {
	return Policy{HighMinConfidence: 8, MediumMinConfidence: 5}
}

func (p Policy) Validate() error {
	if p.MediumMinConfidence < ai.MinConfidence || p.HighMinConfidence > ai.MaxConfidence {
		return fmt.Errorf("thresholds must be within %d..%d", ai.MinConfidence, ai.MaxConfidence)
	}
	if p.MediumMinConfidence > p.HighMinConfidence {
		return fmt.Errorf("medium threshold %d is above high threshold %d", p.MediumMinConfidence, p.HighMinConfidence)
	}
	return nil
}

// Classify derives the tier from confidence and industry fit:
//
//	High   confidence >= HighMinConfidence and fit excellent or good
//	Medium confidence >= MediumMinConfidence and fit not poor
//	Low    everything else
//
// An industry to avoid, either labelled by the analyzer or listed in prefs, caps the tier at Medium.
func Classify(a *ai.Assessment, prefs *profile.Preferences, policy Policy) Tier {
	fit := a.NormalizedFit()

	tier := TierLow
	switch {
	case a.Confidence >= policy.HighMinConfidence && (fit == ai.FitExcellent || fit == ai.FitGood):
		tier = TierHigh
	case a.Confidence >= policy.MediumMinConfidence && fit != ai.FitPoor:
		tier = TierMedium
	}

	avoided := fit == ai.FitAvoid || prefs.AvoidsIndustry(a.Industry)
	if avoided && tier > TierMedium {
		tier = TierMedium
	}

	return tier
}
