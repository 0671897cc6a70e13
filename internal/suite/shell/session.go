package shell

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/credits"
	"github.com/bert-suite/server/internal/suite/intake"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/tools"
	"github.com/bert-suite/server/internal/suite/wizard"
	logx "github.com/bert-suite/server/pkg/logger"
)

// Deps are the process-wide collaborators every session shares. Credits
// only configures each session's own ledger.
type Deps struct {
	Registry           *tools.Registry
	Credits            model.CreditsConfig
	Generator          intake.Generator
	Validator          intake.Validator
	Chat               model.ChatOpener
	Transcripts        model.TranscriptRepository
	ProcessingInterval time.Duration
}

// State is the full shell snapshot: the selector plus the mounted tool.
type State struct {
	SessionID string             `json:"session_id"`
	Credits   credits.Balance    `json:"credits"`
	Tools     []tools.Descriptor `json:"tools"`
	Active    string             `json:"active,omitempty"`
	Wizard    *wizard.State      `json:"wizard,omitempty"`
}

// Session is one mode selector with at most one mounted tool. Selecting
// another tool, or going back, discards the mounted engine and its payload.
type Session struct {
	id     string
	deps   Deps
	ledger *credits.Ledger
	notify model.Notifier
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	engine      *wizard.Engine
	unsubscribe func()
	closed      bool
}

// NewSession starts a session with a fresh ledger and forwards every
// ledger mutation to notify as a credits event.
func NewSession(ctx context.Context, deps Deps, notify model.Notifier) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     ulid.Make().String(),
		deps:   deps,
		ledger: credits.NewLedger(deps.Credits),
		notify: notify,
		ctx:    ctx,
		cancel: cancel,
	}
	s.unsubscribe = s.ledger.Subscribe(func(b credits.Balance) {
		s.notify.Notify(model.Event{Kind: model.EventCredits, Data: b})
	})
	logx.Info().Str("session_id", s.id).Msg("shell session opened")
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Tools lists the selector entries locked against the current balance.
func (s *Session) Tools() []tools.Descriptor {
	return s.deps.Registry.Descriptors(s.ledger.Credits())
}

// Select mounts mode at its intake step, replacing any mounted tool.
func (s *Session) Select(mode string) (*wizard.Engine, error) {
	def, err := s.deps.Registry.Lookup(mode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errx.Conflict(errx.ErrInvalidTransition, "session is closed")
	}
	previous := s.engine
	s.engine = wizard.NewEngine(s.ctx, def, wizard.Deps{
		Generator:          s.deps.Generator,
		Validator:          s.deps.Validator,
		Wallet:             s.ledger,
		Chat:               s.deps.Chat,
		Transcripts:        s.deps.Transcripts,
		ProcessingInterval: s.deps.ProcessingInterval,
		SessionID:          s.id,
		Notify:             s.notify,
	})
	engine := s.engine
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	logx.Info().Str("session_id", s.id).Str("mode", mode).Int("cost", def.Cost).Msg("tool selected")
	s.notify.Notify(model.Event{Kind: model.EventWizard, Mode: mode, Data: engine.State()})
	return engine, nil
}

// Back unmounts the current tool and returns to the selector.
func (s *Session) Back() {
	s.mu.Lock()
	engine := s.engine
	s.engine = nil
	s.mu.Unlock()

	if engine != nil {
		engine.Close()
		logx.Info().Str("session_id", s.id).Str("mode", engine.Definition().Mode).Msg("returned to selector")
	}
}

// Engine returns the mounted tool.
func (s *Session) Engine() (*wizard.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil, errx.Conflict(errx.ErrInvalidTransition, "no tool is selected")
	}
	return s.engine, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	balance := s.ledger.Balance()
	st := State{
		SessionID: s.id,
		Credits:   balance,
		Tools:     s.deps.Registry.Descriptors(balance.Credits),
	}
	if engine != nil {
		ws := engine.State()
		st.Active = ws.Mode
		st.Wizard = &ws
	}
	return st
}

func (s *Session) Balance() credits.Balance {
	return s.ledger.Balance()
}

func (s *Session) Bundles() []credits.Bundle {
	return credits.Bundles()
}

func (s *Session) Purchase(bundleID string) (credits.Bundle, error) {
	return s.ledger.Purchase(bundleID)
}

func (s *Session) SetPaywall(visible bool) {
	if visible {
		s.ledger.ShowPaywall()
		return
	}
	s.ledger.HidePaywall()
}

// Close unmounts the tool, stops background work and detaches from the
// ledger. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	engine := s.engine
	s.engine = nil
	s.mu.Unlock()

	if engine != nil {
		engine.Close()
	}
	s.unsubscribe()
	s.cancel()
	logx.Info().Str("session_id", s.id).Msg("shell session closed")
}
