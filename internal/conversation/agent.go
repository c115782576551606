// Package conversation maintains per-session dialogue state and routes
// incoming readings and follow-up questions through the advice synthesizer
// and the knowledge index. Sessions are the only mutable contended state in
// the engine; each one is serialized behind its own lock.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/advice"
	"github.com/clinovate/bpadvisor/internal/domain/patient"
	"github.com/clinovate/bpadvisor/internal/generation"
	"github.com/clinovate/bpadvisor/internal/knowledge"
	"github.com/clinovate/bpadvisor/internal/observability/metrics"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a session transcript.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// DefaultMaxTurns bounds the per-session context window.
const DefaultMaxTurns = 20

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = fmt.Errorf("conversation: session not found")

// session is owned by the Agent; all access goes through its mutex so turn
// appends and window eviction cannot interleave.
type session struct {
	mu        sync.Mutex
	id        string
	patientID string
	turns     []Turn
}

// Agent is the per-session dialogue coordinator.
type Agent struct {
	synth    *advice.Synthesizer
	ix       *knowledge.Index
	metrics  *metrics.Metrics
	logger   *zap.Logger
	maxTurns int

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewAgent creates the agent. maxTurns <= 0 selects DefaultMaxTurns.
func NewAgent(synth *advice.Synthesizer, ix *knowledge.Index, m *metrics.Metrics, maxTurns int, logger *zap.Logger) *Agent {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		synth:    synth,
		ix:       ix,
		metrics:  m,
		logger:   logger,
		maxTurns: maxTurns,
		sessions: make(map[string]*session),
	}
}

// StartSession opens a new session for a patient and returns its id.
func (a *Agent) StartSession(patientID string) string {
	id := uuid.New().String()
	a.mu.Lock()
	a.sessions[id] = &session{id: id, patientID: patientID}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ActiveSessions.Inc()
	}
	a.logger.Info("session started",
		zap.String("session_id", id), zap.String("patient_id", patientID))
	return id
}

// EndSession drops a session and its transcript.
func (a *Agent) EndSession(id string) {
	a.mu.Lock()
	_, ok := a.sessions[id]
	delete(a.sessions, id)
	a.mu.Unlock()

	if ok && a.metrics != nil {
		a.metrics.ActiveSessions.Dec()
	}
}

// Turns returns a copy of the session transcript in append order.
func (a *Agent) Turns(id string) ([]Turn, error) {
	s, err := a.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// HandleReading runs the full advisory pipeline for a new reading (already
// part of history) and appends the exchange to the session. A failure or
// cancellation appends nothing: both turns land atomically or not at all.
func (a *Agent) HandleReading(ctx context.Context, sessionID string, p patient.Profile, h patient.History) (*advice.Response, error) {
	latest, ok := h.Latest()
	if !ok {
		return nil, fmt.Errorf("conversation: reading history is empty")
	}
	userText := fmt.Sprintf("Submitted reading %.0f/%.0f mmHg", latest.Systolic, latest.Diastolic)
	if latest.Synthetic {
		userText += " (quick default)"
	}
	return a.process(ctx, sessionID, p, h, "", userText)
}

// HandleQuestion answers a free-text question in the context of the
// patient's history. With at least one reading on file the question rides
// the full pipeline; without any, Ask answers from the knowledge corpus.
func (a *Agent) HandleQuestion(ctx context.Context, sessionID string, p patient.Profile, h patient.History, question string) (*advice.Response, error) {
	if question == "" {
		return nil, fmt.Errorf("conversation: question is empty")
	}
	if len(h) == 0 {
		text, err := a.Ask(ctx, sessionID, question)
		if err != nil {
			return nil, err
		}
		return &advice.Response{Text: text}, nil
	}
	return a.process(ctx, sessionID, p, h, question, question)
}

// process serializes one exchange on the session.
func (a *Agent) process(ctx context.Context, sessionID string, p patient.Profile, h patient.History, question, userText string) (*advice.Response, error) {
	s, err := a.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	// Single-writer discipline: only this request touches the session until
	// it completes. Distinct sessions never block each other.
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := a.synth.Advise(ctx, p, h, question, recentForBackend(s.turns, 6))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Cancelled mid-flight: the computation is pure and discarded; the
		// transcript must not record a partial exchange.
		return nil, err
	}

	s.append(Turn{Role: RoleUser, Content: userText},
		Turn{Role: RoleAssistant, Content: resp.Text}, a.maxTurns)

	if a.metrics != nil {
		a.metrics.SessionTurns.Add(2)
	}
	return resp, nil
}

// Ask answers a standalone question from the knowledge corpus alone.
func (a *Agent) Ask(ctx context.Context, sessionID, question string) (string, error) {
	s, err := a.lookup(sessionID)
	if err != nil {
		return "", err
	}

	if a.metrics != nil {
		a.metrics.KnowledgeQueries.Inc()
	}
	hits := a.ix.Search(question, 3)

	var text string
	if len(hits) == 0 {
		text = "No guideline material matched the question. Try terms such as" +
			" classification, risk factors, lifestyle, targets, or a drug class name."
	} else {
		var b strings.Builder
		for i, hit := range hits {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "%s: %s", hit.Doc.Title, hit.Snippet)
		}
		text = b.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.append(Turn{Role: RoleUser, Content: question},
		Turn{Role: RoleAssistant, Content: text}, a.maxTurns)
	if a.metrics != nil {
		a.metrics.SessionTurns.Add(2)
	}
	return text, nil
}

func (a *Agent) lookup(id string) (*session, error) {
	a.mu.RLock()
	s, ok := a.sessions[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// append adds turns and evicts the oldest beyond the window. Callers hold
// the session lock.
func (s *session) append(user, assistant Turn, max int) {
	now := time.Now().UTC()
	user.At, assistant.At = now, now
	s.turns = append(s.turns, user, assistant)
	if len(s.turns) > max {
		s.turns = s.turns[len(s.turns)-max:]
	}
}

// recentForBackend converts the tail of the transcript for the generation
// request payload.
func recentForBackend(turns []Turn, max int) []generation.Turn {
	if len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	out := make([]generation.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, generation.Turn{Role: string(t.Role), Content: t.Content})
	}
	return out
}
