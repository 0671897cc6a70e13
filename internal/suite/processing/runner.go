package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bert-suite/server/internal/suite/model"
	logx "github.com/bert-suite/server/pkg/logger"
)

const (
	DefaultInterval = 1200 * time.Millisecond
	InitialMessage  = "Ready to begin."
)

// State is what the processing view renders.
type State struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Started  bool   `json:"started"`
	Complete bool   `json:"complete"`
}

// Runner walks a fixed script one entry per tick. Completion is reached on
// the entry with progress 100, after which the ticker stops.
type Runner struct {
	mu       sync.Mutex
	script   []model.ProgressStep
	interval time.Duration
	next     int
	state    State
	started  bool
	stopped  bool
	stopCh   chan struct{}
	onChange func(State)
}

// NewRunner validates script and returns a runner in its initial state.
// onChange, when set, is called outside the runner lock after every
// applied entry.
func NewRunner(script []model.ProgressStep, interval time.Duration, onChange func(State)) (*Runner, error) {
	if err := ValidateScript(script); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		script:   append([]model.ProgressStep(nil), script...),
		interval: interval,
		state:    State{Progress: 0, Message: InitialMessage},
		stopCh:   make(chan struct{}),
		onChange: onChange,
	}, nil
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Advance applies the next script entry. It reports false once the runner
// is complete or stopped.
func (r *Runner) Advance() (State, bool) {
	r.mu.Lock()
	if r.stopped || r.state.Complete || r.next >= len(r.script) {
		s := r.state
		r.mu.Unlock()
		return s, false
	}
	entry := r.script[r.next]
	r.next++
	r.state = State{
		Progress: entry.Progress,
		Message:  entry.Message,
		Started:  r.started,
		Complete: entry.Progress >= 100,
	}
	s := r.state
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(s)
	}
	return s, true
}

// Start launches the ticker goroutine. Calling it again is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.state.Started = true
	r.mu.Unlock()

	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			s, ok := r.Advance()
			if !ok || s.Complete {
				logx.Debug().Int("progress", s.Progress).Msg("processing finished")
				return
			}
		}
	}
}

// Stop halts the ticker and freezes the state. Safe to call repeatedly.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
}

// ValidateScript checks a script is non-empty, strictly increasing and
// ends at 100.
func ValidateScript(script []model.ProgressStep) error {
	if len(script) == 0 {
		return errors.New("script is empty")
	}
	prev := -1
	for i, s := range script {
		if s.Progress < 0 || s.Progress > 100 {
			return fmt.Errorf("entry %d: progress %d out of range", i, s.Progress)
		}
		if s.Progress <= prev {
			return fmt.Errorf("entry %d: progress %d not increasing", i, s.Progress)
		}
		prev = s.Progress
	}
	if prev != 100 {
		return fmt.Errorf("script ends at %d, want 100", prev)
	}
	return nil
}
