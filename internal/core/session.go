// Package core orchestrates conversation sessions: each turn translates user text into a
// diff, merges it into the session's network and refreshes the narrative.
package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/cbning/internal/core/dedupe"
	"github.com/agenthands/cbning/internal/core/interpretation"
	"github.com/agenthands/cbning/internal/core/merge"
	"github.com/agenthands/cbning/internal/core/model"
	"github.com/agenthands/cbning/internal/core/translation"
	"github.com/agenthands/cbning/internal/core/validation"
	apperrors "github.com/agenthands/cbning/internal/errors"
	"github.com/agenthands/cbning/internal/logger"
	"github.com/agenthands/cbning/internal/metrics"
)

const WelcomeMessage = `Welcome to the Causal Bayesian Network Builder!

We're starting with a simple scenario:
"Increased access to clean water improves community health outcomes."

You can build upon this by adding more factors, relationships, or refining the existing ones. For example, you might consider adding nodes for:
• Education Programs
• Government Funding
• Infrastructure Development

Feel free to explore and expand the network based on your own ideas and hypotheses! What would you like to add or modify?`

const ResumeMessage = "Welcome back! Your network has been restored. What would you like to add or modify?"

type Translator interface {
	Translate(ctx context.Context, current model.CBN, text string) (*model.Translation, error)
}

type Interpreter interface {
	Interpret(ctx context.Context, g model.CBN) (string, error)
}

// Store persists committed networks. Save failures never undo a commit.
type Store interface {
	Save(ctx context.Context, sessionID string, g model.CBN) error
	Load(ctx context.Context, sessionID string) (model.CBN, error)
	Delete(ctx context.Context, sessionID string) error
}

type TurnStatus string

const (
	TurnWelcome          TurnStatus = "welcome"
	TurnCommitted        TurnStatus = "committed"
	TurnRejected         TurnStatus = "rejected"
	TurnMalformed        TurnStatus = "malformed"
	TurnTranslationError TurnStatus = "translation_error"
	TurnCancelled        TurnStatus = "cancelled"
)

// Turn is one transcript entry. Interpretation is the narrative of the network as it
// stood after the turn.
type Turn struct {
	Index          int                    `json:"index"`
	Status         TurnStatus             `json:"status"`
	UserText       string                 `json:"user_text,omitempty"`
	Reply          string                 `json:"reply"`
	Interpretation string                 `json:"interpretation"`
	Suggestions    []string               `json:"suggestions,omitempty"`
	Prompts        []string               `json:"prompts,omitempty"`
	Subclaims      []string               `json:"subclaims,omitempty"`
	Violations     []validation.Violation `json:"violations,omitempty"`
	Problems       []string               `json:"problems,omitempty"`
	Expanded       []string               `json:"expanded,omitempty"`
	Error          string                 `json:"error,omitempty"`
	At             time.Time              `json:"at"`
}

// Deps are the collaborators shared by every session of a Manager.
type Deps struct {
	Translator       Translator
	Interpreter      Interpreter
	Store            Store
	Merger           *merge.Merger
	Metrics          *metrics.Collector
	TranslateTimeout time.Duration
	InterpretTimeout time.Duration
	StoreTimeout     time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Merger == nil {
		d.Merger = merge.NewMerger(merge.PolicyAutoExpand, validation.DefaultTolerance, validation.DefaultMaxRows)
	}
	if d.TranslateTimeout <= 0 {
		d.TranslateTimeout = 60 * time.Second
	}
	if d.InterpretTimeout <= 0 {
		d.InterpretTimeout = 30 * time.Second
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = 10 * time.Second
	}
	return d
}

// Session owns one conversation's network. Turns are serialized: the lock is held from
// translation until the turn is appended, so two messages never race on the same state.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu             sync.Mutex
	cbn            model.CBN
	transcript     []Turn
	interpretation string
	updatedAt      time.Time
	closed         bool

	deps   Deps
	logger *zap.Logger
}

// Summary is a read-only view of a session.
type Summary struct {
	ID             string    `json:"id"`
	CBN            model.CBN `json:"cbn"`
	Interpretation string    `json:"interpretation"`
	Turns          int       `json:"turns"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newSession(ctx context.Context, id string, initial model.CBN, welcome string, deps Deps) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		cbn:       initial,
		updatedAt: now,
		deps:      deps,
		logger:    logger.Get().With(zap.String("session_id", id)),
	}
	s.interpretation = s.interpret(ctx, initial)
	s.transcript = append(s.transcript, Turn{
		Index:          0,
		Status:         TurnWelcome,
		Reply:          welcome,
		Interpretation: s.interpretation,
		At:             now,
	})
	return s
}

// Submit runs one turn and returns its transcript entry. A cancelled ctx before commit
// leaves the network unchanged; after commit the change stands.
func (s *Session) Submit(ctx context.Context, text string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := Turn{Index: len(s.transcript), UserText: text, At: time.Now().UTC()}
	s.logger.Info("Processing user input", zap.Int("turn", turn.Index))

	if err := ctx.Err(); err != nil {
		return s.finish(s.cancelled(turn, err))
	}

	tr, err := s.translate(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(s.cancelled(turn, ctx.Err()))
		}
		s.logger.Warn("Translation failed", zap.Error(err))
		turn.Status = TurnTranslationError
		turn.Error = err.Error()
		turn.Reply = fmt.Sprintf("An error occurred while processing your input: %v", err)
		return s.finish(turn)
	}
	if pairs := dedupe.ResolveDuplicates(s.cbn, *tr.Diff); len(pairs) > 0 {
		cp := *tr
		cp.Suggestions = append(slices.Clone(tr.Suggestions), dedupe.Suggestions(pairs)...)
		tr = &cp
	}
	turn.Suggestions, turn.Prompts, turn.Subclaims = tr.Suggestions, tr.Prompts, tr.Subclaims

	if err := ctx.Err(); err != nil {
		return s.finish(s.cancelled(turn, err))
	}

	out := s.deps.Merger.Apply(s.cbn, *tr.Diff)
	switch out.Status {
	case merge.StatusMalformed:
		turn.Status = TurnMalformed
		turn.Problems = out.Problems
		turn.Error = out.Err().Error()
		turn.Reply = "I couldn't apply that change because the proposed update was incomplete:\n" + bullets(out.Problems)
		return s.finish(turn)

	case merge.StatusRejected:
		turn.Status = TurnRejected
		turn.Violations = out.Violations
		turn.Error = out.Err().Error()
		turn.Reply = "I couldn't apply that change because it would make the network invalid:\n" +
			bullets(validation.Result{Violations: out.Violations}.Messages())
		return s.finish(turn)
	}

	s.cbn = out.State
	s.updatedAt = turn.At
	turn.Status = TurnCommitted
	turn.Expanded = out.Expanded
	turn.Reply = translation.Reply(tr)
	s.logger.Info("CBN updated", zap.Int("nodes", len(s.cbn.Nodes)), zap.Int("edges", len(s.cbn.Edges)))

	s.afterCommit(ctx)
	return s.finish(turn)
}

// afterCommit refreshes the narrative and persists the snapshot concurrently. Neither
// failure is fatal to the turn.
func (s *Session) afterCommit(ctx context.Context) {
	committed := s.cbn.Clone()

	var g errgroup.Group
	var narrative string
	g.Go(func() error {
		narrative = s.interpret(ctx, committed)
		return nil
	})
	if s.deps.Store != nil && !s.closed {
		g.Go(func() error {
			// The commit already happened; a client hanging up must not lose the snapshot.
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.StoreTimeout)
			defer cancel()
			start := time.Now()
			err := s.deps.Store.Save(pctx, s.ID, committed)
			s.deps.Metrics.ObserveCall("persist", start, err)
			if err != nil {
				s.logger.Error("Failed to persist snapshot", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	s.interpretation = narrative
}

func (s *Session) translate(ctx context.Context, text string) (*model.Translation, error) {
	if s.deps.Translator == nil {
		return nil, apperrors.NewTranslationFailed("no translator configured", nil)
	}
	tctx, cancel := context.WithTimeout(ctx, s.deps.TranslateTimeout)
	defer cancel()

	start := time.Now()
	tr, err := s.deps.Translator.Translate(tctx, s.cbn.Clone(), text)
	s.deps.Metrics.ObserveCall("translate", start, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperrors.NewContextTimeout("translate", s.deps.TranslateTimeout, err)
		}
		return nil, err
	}
	if tr == nil || tr.Diff == nil {
		return nil, apperrors.NewTranslationFailed("empty translation", nil)
	}
	return tr, nil
}

// interpret never fails: on error the deterministic description stands in.
func (s *Session) interpret(ctx context.Context, g model.CBN) string {
	if s.deps.Interpreter == nil {
		return interpretation.Describe(g)
	}
	ictx, cancel := context.WithTimeout(ctx, s.deps.InterpretTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.deps.Interpreter.Interpret(ictx, g)
	s.deps.Metrics.ObserveCall("interpret", start, err)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("Interpretation unavailable, using description", zap.Error(err))
		return interpretation.Describe(g)
	}
	return text
}

// close waits for any in-flight turn and stops later turns from persisting.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) cancelled(turn Turn, err error) Turn {
	turn.Status = TurnCancelled
	turn.Error = err.Error()
	turn.Reply = "The request was cancelled before the network changed."
	return turn
}

// finish stamps the current narrative on the turn, records it and returns a copy.
func (s *Session) finish(turn Turn) Turn {
	turn.Interpretation = s.interpretation
	s.transcript = append(s.transcript, turn)

	var rules []string
	for _, v := range turn.Violations {
		rules = append(rules, string(v.Rule))
	}
	s.deps.Metrics.RecordTurn(string(turn.Status), rules)
	return turn
}

// State returns a copy of the current network.
func (s *Session) State() model.CBN {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cbn.Clone()
}

func (s *Session) Interpretation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interpretation
}

func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transcript)
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:             s.ID,
		CBN:            s.cbn.Clone(),
		Interpretation: s.interpretation,
		Turns:          len(s.transcript),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.updatedAt,
	}
}

func bullets(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("• ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
