package provider

import (
	"context"
	"errors"

	"github.com/haneul/mindsketch/pkg/models"
)

var (
	ErrMissingInput      = errors.New("all three drawings (house, tree, person) are required")
	ErrCredential        = errors.New("reasoning service credentials missing or invalid")
	ErrQuota             = errors.New("reasoning service quota exceeded")
	ErrUpstream          = errors.New("reasoning service request failed")
	ErrSchema            = errors.New("reasoning service returned a malformed analysis")
	ErrStreamInterrupted = errors.New("chat reply interrupted mid-stream")
)

// Analyzer submits one completed drawing set for interpretation. Exactly one
// outbound call per invocation; retries are the caller's responsibility.
type Analyzer interface {
	Analyze(ctx context.Context, drawings *models.DrawingSet) (*models.AnalysisResult, error)
}

// Counselor produces one assistant chat turn grounded in a completed
// analysis. history carries every prior turn in order, ending with the user
// turn being answered. onChunk, when non-nil, receives partial text deltas
// as they arrive; the returned string is the complete final turn.
type Counselor interface {
	Counsel(ctx context.Context, result *models.AnalysisResult, history []models.ChatTurn, onChunk func(delta string)) (string, error)
}

// Backend is a full reasoning-service binding: analysis plus counseling.
type Backend interface {
	Analyzer
	Counselor
}

type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
	Verbose    bool
}
