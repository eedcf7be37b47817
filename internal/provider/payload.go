package provider

import (
	"encoding/json"
	"fmt"

	"github.com/haneul/mindsketch/pkg/models"
)

// Wire shape of an analysis payload. Pointer fields distinguish "absent"
// from "empty" so partial responses are rejected instead of silently
// zero-filled.
type analysisPayload struct {
	Summary           *string         `json:"summary"`
	PersonalityTraits *[]traitPayload `json:"personalityTraits"`
	EmotionalState    *string         `json:"emotionalState"`
	Advice            *string         `json:"advice"`
	KeyInsights       *[]string       `json:"keyInsights"`
}

type traitPayload struct {
	Trait       *string  `json:"trait"`
	Score       *float64 `json:"score"`
	Description *string  `json:"description"`
}

// ParseAnalysis validates an upstream analysis payload against the
// AnalysisResult shape. Any missing required field fails with ErrSchema;
// nothing partially populated escapes this boundary. ID and Date are left
// for the gateway to assign.
func ParseAnalysis(data []byte) (*models.AnalysisResult, error) {
	var payload analysisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	switch {
	case payload.Summary == nil:
		return nil, fmt.Errorf("%w: missing field %q", ErrSchema, "summary")
	case payload.PersonalityTraits == nil:
		return nil, fmt.Errorf("%w: missing field %q", ErrSchema, "personalityTraits")
	case payload.EmotionalState == nil:
		return nil, fmt.Errorf("%w: missing field %q", ErrSchema, "emotionalState")
	case payload.Advice == nil:
		return nil, fmt.Errorf("%w: missing field %q", ErrSchema, "advice")
	case payload.KeyInsights == nil:
		return nil, fmt.Errorf("%w: missing field %q", ErrSchema, "keyInsights")
	}

	traits := make([]models.PersonalityTrait, 0, len(*payload.PersonalityTraits))
	for i, tr := range *payload.PersonalityTraits {
		switch {
		case tr.Trait == nil:
			return nil, fmt.Errorf("%w: trait %d missing field %q", ErrSchema, i, "trait")
		case tr.Score == nil:
			return nil, fmt.Errorf("%w: trait %d missing field %q", ErrSchema, i, "score")
		case tr.Description == nil:
			return nil, fmt.Errorf("%w: trait %d missing field %q", ErrSchema, i, "description")
		}
		if *tr.Score < models.TraitScoreMin || *tr.Score > models.TraitScoreMax {
			return nil, fmt.Errorf("%w: trait %q score %g out of range [%d, %d]",
				ErrSchema, *tr.Trait, *tr.Score, models.TraitScoreMin, models.TraitScoreMax)
		}
		traits = append(traits, models.PersonalityTrait{
			Trait:       *tr.Trait,
			Score:       *tr.Score,
			Description: *tr.Description,
		})
	}

	return &models.AnalysisResult{
		Summary:           *payload.Summary,
		PersonalityTraits: traits,
		EmotionalState:    *payload.EmotionalState,
		Advice:            *payload.Advice,
		KeyInsights:       *payload.KeyInsights,
	}, nil
}
