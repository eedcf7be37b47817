// Package chat implements the counselor conversation bound to one completed
// analysis. Sessions live only as long as the view that opened them; nothing
// here is persisted.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/pkg/models"
)

var (
	ErrNoResult     = errors.New("conversation requires a completed analysis result")
	ErrNoCounselor  = errors.New("conversation requires a counselor backend")
	ErrBusy         = errors.New("a counselor reply is already in progress")
	ErrClosed       = errors.New("conversation session is closed")
	ErrEmptyMessage = errors.New("message is empty")
)

const (
	// Greeting seeds every fresh session, matching the counselor's opener.
	Greeting = "안녕하세요! 분석 결과를 바탕으로 더 궁금하신 점이 있다면 편하게 말씀해 주세요."

	// Fallback replaces a reply that failed mid-stream. The session stays
	// usable; the user's turn is kept so they can simply re-send.
	Fallback = "잠시 연결이 원활하지 않네요. 다시 시도해 주시겠어요?"
)

// Session is one turn-taking exchange grounded in a single AnalysisResult.
// At most one Send may be outstanding; a second Send while one is pending is
// rejected with ErrBusy. The session is single-consumer and relies on the
// caller's event ordering, not locks.
type Session struct {
	ID        string
	result    *models.AnalysisResult
	counselor provider.Counselor
	turns     []models.ChatTurn
	pending   bool
	closed    bool
}

func Open(result *models.AnalysisResult, counselor provider.Counselor) (*Session, error) {
	if result == nil {
		return nil, ErrNoResult
	}
	if counselor == nil {
		return nil, ErrNoCounselor
	}
	return &Session{
		ID:        uuid.New().String(),
		result:    result,
		counselor: counselor,
		turns:     []models.ChatTurn{{Role: models.RoleModel, Text: Greeting}},
	}, nil
}

func (s *Session) Result() *models.AnalysisResult {
	return s.result
}

// Turns returns a snapshot of the conversation so far.
func (s *Session) Turns() []models.ChatTurn {
	out := make([]models.ChatTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Send appends the user's turn and produces the counselor's reply. onPartial
// observes the growing assistant text after each chunk. On a mid-stream
// failure the partial reply is replaced with the fallback turn and the error
// is returned for display; the session remains usable.
func (s *Session) Send(ctx context.Context, text string, onPartial func(partial string)) error {
	if s.closed {
		return ErrClosed
	}
	if s.pending {
		return ErrBusy
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.pending = true
	defer func() { s.pending = false }()

	s.turns = append(s.turns, models.ChatTurn{Role: models.RoleUser, Text: text})
	history := make([]models.ChatTurn, len(s.turns))
	copy(history, s.turns)

	s.turns = append(s.turns, models.ChatTurn{Role: models.RoleModel})
	reply := len(s.turns) - 1

	final, err := s.counselor.Counsel(ctx, s.result, history, func(delta string) {
		if s.closed {
			// The view is gone; the abandoned stream must not surface.
			return
		}
		s.turns[reply].Text += delta
		if onPartial != nil {
			onPartial(s.turns[reply].Text)
		}
	})
	if s.closed {
		return ErrClosed
	}
	if err != nil {
		s.turns[reply].Text = Fallback
		return err
	}

	s.turns[reply].Text = final
	return nil
}

// Close abandons the session. A stream still in flight keeps running to
// completion upstream but produces no further observable updates.
func (s *Session) Close() {
	s.closed = true
}
