// Package sequencer orders the three capture stages and drives the analysis
// handoff. One Sequencer owns one run at a time; the caller's event loop is
// the only writer, so state changes are atomic without locking.
package sequencer

import (
	"context"
	"errors"
	"fmt"

	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/pkg/models"
)

type State int

const (
	StateIdle State = iota
	StateHouse
	StateTree
	StatePerson
	StateAnalyzing
	StateResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHouse:
		return "house"
	case StateTree:
		return "tree"
	case StatePerson:
		return "person"
	case StateAnalyzing:
		return "analyzing"
	case StateResult:
		return "result"
	}
	return "unknown"
}

var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrNilImage          = errors.New("commit requires a captured image")
)

// Archiver persists completed results. Save runs on the success transition
// into StateResult.
type Archiver interface {
	Save(ctx context.Context, res *models.AnalysisResult) error
}

// Sequencer is the run state machine:
//
//	Idle -> House -> Tree -> Person -> Analyzing -> Result
//
// Analyzing falls back to Idle on failure, retaining the error for display
// and discarding the run. Result returns to Idle on Restart. Review enters
// Result directly from an archived entry, bypassing capture.
type Sequencer struct {
	analyzer provider.Analyzer
	archiver Archiver

	state   State
	run     *models.DrawingSet
	result  *models.AnalysisResult
	lastErr error
}

func New(analyzer provider.Analyzer, archiver Archiver) *Sequencer {
	return &Sequencer{analyzer: analyzer, archiver: archiver, state: StateIdle}
}

func (q *Sequencer) State() State { return q.state }

func (q *Sequencer) Result() *models.AnalysisResult { return q.result }

func (q *Sequencer) LastErr() error { return q.lastErr }

// Run exposes the in-progress drawing set, nil outside a run.
func (q *Sequencer) Run() *models.DrawingSet { return q.run }

// CurrentStage reports which capture stage is authoritative, false outside
// the three capture states.
func (q *Sequencer) CurrentStage() (models.Stage, bool) {
	switch q.state {
	case StateHouse:
		return models.StageHouse, true
	case StateTree:
		return models.StageTree, true
	case StatePerson:
		return models.StagePerson, true
	}
	return "", false
}

// Start begins a fresh run from Idle, clearing any prior run and error.
func (q *Sequencer) Start() error {
	if q.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, q.state)
	}
	q.run = &models.DrawingSet{}
	q.result = nil
	q.lastErr = nil
	q.state = StateHouse
	return nil
}

// Commit stores the image under the current stage and advances. The Person
// commit synchronously invokes the analyzer: on success the result is
// archived and the sequencer lands in Result; on failure it returns to Idle
// with the error retained and the run discarded. Exactly one analyze call
// happens per Person commit.
func (q *Sequencer) Commit(ctx context.Context, img *models.CapturedImage) error {
	stage, ok := q.CurrentStage()
	if !ok {
		return fmt.Errorf("%w: commit in %s", ErrInvalidTransition, q.state)
	}
	if img == nil {
		return ErrNilImage
	}

	q.run.Set(stage, img)

	switch stage {
	case models.StageHouse:
		q.state = StateTree
		return nil
	case models.StageTree:
		q.state = StatePerson
		return nil
	}

	// Third commit: all three keys are populated, hand off to the gateway.
	q.state = StateAnalyzing
	result, err := q.analyzer.Analyze(ctx, q.run)
	if err != nil {
		q.lastErr = err
		q.run = nil
		q.state = StateIdle
		return err
	}

	q.result = result
	q.run = nil
	q.state = StateResult

	if q.archiver != nil {
		if err := q.archiver.Save(ctx, result); err != nil {
			// The analysis itself succeeded; the result stays viewable.
			return fmt.Errorf("failed to archive result: %w", err)
		}
	}
	return nil
}

// Restart returns to Idle from the result screen, discarding the shown
// result. Restarting mid-run is also allowed and abandons the run.
func (q *Sequencer) Restart() error {
	if q.state == StateAnalyzing {
		return fmt.Errorf("%w: restart during analysis", ErrInvalidTransition)
	}
	q.run = nil
	q.result = nil
	q.lastErr = nil
	q.state = StateIdle
	return nil
}

// Review enters Result directly with an archived result, bypassing capture.
func (q *Sequencer) Review(res *models.AnalysisResult) error {
	if res == nil {
		return fmt.Errorf("review requires a result")
	}
	if q.state != StateIdle && q.state != StateResult {
		return fmt.Errorf("%w: review from %s", ErrInvalidTransition, q.state)
	}
	q.run = nil
	q.result = res
	q.lastErr = nil
	q.state = StateResult
	return nil
}
