package wizard

import (
	"context"
	"sync"
	"time"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/chat"
	"github.com/bert-suite/server/internal/suite/intake"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/processing"
	"github.com/bert-suite/server/internal/suite/tools"
	logx "github.com/bert-suite/server/pkg/logger"
)

// Deps are the collaborators shared by every engine of a shell session.
type Deps struct {
	Generator          intake.Generator
	Validator          intake.Validator
	Wallet             intake.Wallet
	Chat               model.ChatOpener
	Transcripts        model.TranscriptRepository
	ProcessingInterval time.Duration
	SessionID          string
	Notify             model.Notifier
}

// State is the full snapshot of a mounted tool. Only the current step's
// view is populated.
type State struct {
	Mode       string            `json:"mode"`
	Title      string            `json:"title"`
	Steps      []tools.Step      `json:"steps"`
	Current    Step              `json:"current"`
	CurrentID  string            `json:"current_id"`
	Intake     *intake.State     `json:"intake,omitempty"`
	Processing *processing.State `json:"processing,omitempty"`
	Chat       *chat.State       `json:"chat,omitempty"`
}

// Engine is the generic per-tool wizard: one Machine plus whichever step
// view is mounted. Its views are discarded on every transition.
type Engine struct {
	def    *tools.Definition
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	machine *Machine
	intake  *intake.Controller
	runner  *processing.Runner
	chat    *chat.View
	closed  bool
}

// NewEngine mounts def at its intake step. ctx bounds every background task
// the engine starts.
func NewEngine(ctx context.Context, def *tools.Definition, deps Deps) *Engine {
	ctx, cancel := context.WithCancel(ctx)
	e := &Engine{
		def:     def,
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
		machine: NewMachine(def.Steps),
	}
	e.intake = e.newIntake()
	return e
}

func (e *Engine) newIntake() *intake.Controller {
	return intake.NewController(e.def, e.deps.Generator, e.deps.Validator, e.deps.Wallet, e.deps.Notify)
}

func (e *Engine) Definition() *tools.Definition {
	return e.def
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	st := State{
		Mode:      e.def.Mode,
		Title:     e.def.Title,
		Steps:     e.machine.Steps(),
		Current:   e.machine.Current(),
		CurrentID: e.machine.CurrentID(),
	}
	if e.intake != nil {
		s := e.intake.State()
		st.Intake = &s
	}
	if e.runner != nil {
		s := e.runner.State()
		st.Processing = &s
	}
	if e.chat != nil {
		s := e.chat.State()
		st.Chat = &s
	}
	return st
}

func (e *Engine) emit() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	st := e.stateLocked()
	e.mu.Unlock()
	e.deps.Notify.Notify(model.Event{Kind: model.EventWizard, Mode: e.def.Mode, Data: st})
}

// Intake returns the mounted intake view.
func (e *Engine) Intake() (*intake.Controller, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.intake == nil {
		return nil, errx.Conflict(errx.ErrInvalidTransition, "the intake step is not active")
	}
	return e.intake, nil
}

// Chat returns the mounted conversational view.
func (e *Engine) Chat() (*chat.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.chat == nil {
		return nil, errx.Conflict(errx.ErrInvalidTransition, "the interactive step is not active")
	}
	return e.chat, nil
}

// Proceed hands the intake payload to a fresh processing view. The ticker
// starts at once unless the tool waits for StartProcessing.
func (e *Engine) Proceed() error {
	e.mu.Lock()
	if e.closed || e.intake == nil {
		e.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "the intake step is not active")
	}
	payload, err := e.intake.Proceed()
	if err != nil {
		e.mu.Unlock()
		return err
	}

	runner, err := processing.NewRunner(e.def.Script(), e.deps.ProcessingInterval, e.onProgress)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.machine.Proceed(payload); err != nil {
		e.mu.Unlock()
		return err
	}
	e.intake.Close()
	e.intake = nil
	e.runner = runner
	if !e.def.ManualStart {
		runner.Start(e.ctx)
	}
	e.mu.Unlock()

	logx.Info().Str("mode", e.def.Mode).Str("session_id", e.deps.SessionID).Msg("wizard entered processing")
	e.emit()
	return nil
}

func (e *Engine) onProgress(st processing.State) {
	e.deps.Notify.Notify(model.Event{Kind: model.EventProcessing, Mode: e.def.Mode, Data: st})
}

// StartProcessing starts the processing ticker. It is a no-op once started.
func (e *Engine) StartProcessing() error {
	e.mu.Lock()
	if e.closed || e.runner == nil {
		e.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "the processing step is not active")
	}
	if e.runner.State().Started {
		e.mu.Unlock()
		return nil
	}
	e.runner.Start(e.ctx)
	e.mu.Unlock()

	logx.Debug().Str("mode", e.def.Mode).Str("session_id", e.deps.SessionID).Msg("processing started")
	e.emit()
	return nil
}

// Confirm moves a completed processing view to the interactive step.
func (e *Engine) Confirm() error {
	e.mu.Lock()
	if e.closed || e.runner == nil {
		e.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "the processing step is not active")
	}
	if err := e.machine.Confirm(e.runner.State().Complete); err != nil {
		e.mu.Unlock()
		return err
	}
	e.runner.Stop()
	e.runner = nil
	view := e.mountChatLocked()
	payload := e.machine.Payload()
	e.mu.Unlock()

	logx.Info().Str("mode", e.def.Mode).Str("session_id", e.deps.SessionID).Msg("wizard entered interactive")
	e.emit()
	return view.Mount(e.ctx, payload)
}

// ForceInteractive jumps straight to the interactive step regardless of
// guards. Without a payload the chat view renders the missing-data line.
func (e *Engine) ForceInteractive() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "engine is closed")
	}
	e.unmountLocked()
	e.machine.Force(StepInteractive)
	view := e.mountChatLocked()
	payload := e.machine.Payload()
	e.mu.Unlock()

	e.emit()
	return view.Mount(e.ctx, payload)
}

func (e *Engine) mountChatLocked() *chat.View {
	e.chat = chat.NewView(chat.Config{
		Tool:          e.def,
		Opener:        e.deps.Chat,
		Transcripts:   e.deps.Transcripts,
		TranscriptKey: e.transcriptKey(),
		Notify:        e.deps.Notify,
	})
	return e.chat
}

func (e *Engine) transcriptKey() string {
	if e.deps.SessionID == "" {
		return ""
	}
	return e.deps.SessionID + ":" + e.def.Mode
}

// Reset returns to a fresh intake from any later step. It is a no-op at the
// initial step.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "engine is closed")
	}
	if !e.machine.Reset() {
		e.mu.Unlock()
		return nil
	}
	e.unmountLocked()
	e.intake = e.newIntake()
	e.mu.Unlock()

	logx.Info().Str("mode", e.def.Mode).Str("session_id", e.deps.SessionID).Msg("wizard reset")
	e.emit()
	return nil
}

func (e *Engine) unmountLocked() {
	if e.intake != nil {
		e.intake.Close()
		e.intake = nil
	}
	if e.runner != nil {
		e.runner.Stop()
		e.runner = nil
	}
	if e.chat != nil {
		e.chat.Close()
		e.chat = nil
	}
}

// Close discards every view and stops background work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.unmountLocked()
	e.mu.Unlock()
	e.cancel()
}
