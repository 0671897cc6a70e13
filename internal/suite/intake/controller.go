package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/pipeline"
	"github.com/bert-suite/server/internal/suite/tools"
	logx "github.com/bert-suite/server/pkg/logger"
)

const DefaultFailure = "Failed to generate a result. Please try again."

// Generator runs intake and extra generations.
type Generator interface {
	Generate(ctx context.Context, def *tools.Definition, input map[string]string) (*model.Payload, error)
	GenerateExtra(ctx context.Context, def *tools.Definition, extra *tools.Extra, payload *model.Payload) (json.RawMessage, error)
}

// Validator checks an edited result against the tool schema.
type Validator interface {
	Validate(raw json.RawMessage, s *model.Schema) error
}

// Wallet is the part of the credit ledger the gating protocol needs.
type Wallet interface {
	Credits() int
	TrySpend(amount int) bool
	ShowPaywall()
}

// State is the rendered view of an intake.
type State struct {
	Input     map[string]string          `json:"input"`
	Loading   bool                       `json:"loading"`
	Extending string                     `json:"extending,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Title     string                     `json:"title,omitempty"`
	Result    json.RawMessage            `json:"result,omitempty"`
	Extras    map[string]json.RawMessage `json:"extras,omitempty"`
	Editable  bool                       `json:"editable"`
}

// Controller owns one intake view. It is discarded on reset, after which
// late generation results are dropped without spending.
type Controller struct {
	def       *tools.Definition
	gen       Generator
	validator Validator
	wallet    Wallet
	notify    model.Notifier

	mu        sync.Mutex
	input     map[string]string
	loading   bool
	extending string
	errMsg    string
	payload   *model.Payload
	closed    bool
}

func NewController(def *tools.Definition, gen Generator, validator Validator, wallet Wallet, notify model.Notifier) *Controller {
	return &Controller{
		def:       def,
		gen:       gen,
		validator: validator,
		wallet:    wallet,
		notify:    notify,
		input:     def.EmptyInput(),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	st := State{
		Input:     maps.Clone(c.input),
		Loading:   c.loading,
		Extending: c.extending,
		Error:     c.errMsg,
		Editable:  c.def.Intake.Editable,
	}
	if c.payload != nil {
		p := c.payload.Clone()
		st.Title = p.Title
		st.Result = p.Result
		st.Extras = p.Extras
	}
	return st
}

// emit publishes the current state. Callers must not hold c.mu.
func (c *Controller) emit() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	st := c.stateLocked()
	c.mu.Unlock()
	c.notify.Notify(model.Event{Kind: model.EventIntake, Mode: c.def.Mode, Data: st})
}

// SetField updates one input field.
func (c *Controller) SetField(name, value string) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.def.HasField(name) {
		c.mu.Unlock()
		return errx.InvalidInput(fmt.Errorf("field %q", name), fmt.Sprintf("unknown field %q", name))
	}
	c.input[name] = value
	c.mu.Unlock()

	c.emit()
	return nil
}

func (c *Controller) editableLocked() error {
	if c.closed {
		return errx.Conflict(errx.ErrInvalidTransition, "intake is no longer mounted")
	}
	if c.loading {
		return errx.Conflict(errx.ErrInFlight, "a generation is already in progress")
	}
	if c.payload != nil {
		return errx.Conflict(errx.ErrInvalidTransition, "inputs are locked once a result exists")
	}
	return nil
}

// Generate runs the gated generation. It is a no-op while another
// generation is in flight. Credits are spent only after success, and a
// result whose cost the balance no longer covers is discarded.
func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil
	}
	if c.closed {
		c.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "intake is no longer mounted")
	}
	if c.payload != nil {
		c.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "a result already exists")
	}

	cost := c.def.Cost
	if balance := c.wallet.Credits(); balance < cost {
		c.mu.Unlock()
		c.wallet.ShowPaywall()
		logx.Info().Str("mode", c.def.Mode).Int("cost", cost).Int("credits", balance).Msg("insufficient credits")
		return errx.InsufficientCredits(cost, balance)
	}

	c.loading = true
	c.errMsg = ""
	input := maps.Clone(c.input)
	c.mu.Unlock()
	c.emit()

	payload, err := c.gen.Generate(ctx, c.def, input)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logx.Debug().Str("mode", c.def.Mode).Msg("dropping generation result for unmounted intake")
		return nil
	}
	c.loading = false
	if err != nil {
		c.errMsg = c.failureMessage()
		c.mu.Unlock()
		logx.Warn().Err(err).Str("mode", c.def.Mode).Msg("intake generation failed")
		c.emit()
		return errx.Generation(err, c.failureMessage())
	}
	if !c.wallet.TrySpend(cost) {
		c.mu.Unlock()
		c.wallet.ShowPaywall()
		balance := c.wallet.Credits()
		logx.Info().Str("mode", c.def.Mode).Int("cost", cost).Int("credits", balance).Msg("balance dropped during generation, result discarded")
		c.emit()
		return errx.InsufficientCredits(cost, balance)
	}
	c.payload = payload
	c.mu.Unlock()

	logx.Info().Str("mode", c.def.Mode).Int("cost", cost).Msg("intake generation succeeded")
	c.emit()
	return nil
}

func (c *Controller) failureMessage() string {
	if c.def.Intake.Failure != "" {
		return c.def.Intake.Failure
	}
	return DefaultFailure
}

// Edit replaces the result for editable tools. The edit must still satisfy
// the tool schema; extras derived from the old result are dropped.
func (c *Controller) Edit(raw json.RawMessage) error {
	c.mu.Lock()
	if !c.def.Intake.Editable {
		c.mu.Unlock()
		return errx.Conflict(errx.ErrNotEditable, fmt.Sprintf("%s results cannot be edited", c.def.Title))
	}
	if err := c.busyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.payload == nil {
		c.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "there is no result to edit")
	}
	c.mu.Unlock()

	if err := c.validator.Validate(raw, c.def.Intake.Schema); err != nil {
		return errx.InvalidInput(err, "edited result does not match the tool schema")
	}

	c.mu.Lock()
	if c.closed || c.payload == nil {
		c.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "intake is no longer mounted")
	}
	next := c.payload.Clone()
	next.Result = append(json.RawMessage(nil), raw...)
	next.Title = pipeline.TitleOf(c.def, next.Result)
	next.Extras = nil
	c.payload = next
	c.mu.Unlock()

	c.emit()
	return nil
}

func (c *Controller) busyLocked() error {
	if c.closed {
		return errx.Conflict(errx.ErrInvalidTransition, "intake is no longer mounted")
	}
	if c.loading || c.extending != "" {
		return errx.Conflict(errx.ErrInFlight, "a generation is already in progress")
	}
	return nil
}

// Extra runs a named auxiliary generation from the current result. It costs
// nothing and is a no-op while any generation is in flight.
func (c *Controller) Extra(ctx context.Context, name string) error {
	extra, ok := c.def.Extra(name)
	if !ok {
		return errx.NotFound(errx.ErrUnknownExtra, fmt.Sprintf("unknown extra %q", name))
	}

	c.mu.Lock()
	if c.loading || c.extending != "" {
		c.mu.Unlock()
		return nil
	}
	if c.closed {
		c.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "intake is no longer mounted")
	}
	if c.payload == nil {
		c.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "generate a result first")
	}
	c.extending = name
	c.errMsg = ""
	payload := c.payload.Clone()
	c.mu.Unlock()
	c.emit()

	raw, err := c.gen.GenerateExtra(ctx, c.def, extra, payload)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.extending = ""
	if err != nil {
		msg := extra.Failure
		if msg == "" {
			msg = DefaultFailure
		}
		c.errMsg = msg
		c.mu.Unlock()
		logx.Warn().Err(err).Str("mode", c.def.Mode).Str("extra", name).Msg("extra generation failed")
		c.emit()
		return errx.Generation(err, msg)
	}
	next := c.payload.Clone()
	if next.Extras == nil {
		next.Extras = make(map[string]json.RawMessage, 1)
	}
	next.Extras[name] = raw
	c.payload = next
	c.mu.Unlock()

	c.emit()
	return nil
}

// DismissError clears the inline error.
func (c *Controller) DismissError() {
	c.mu.Lock()
	if c.errMsg == "" {
		c.mu.Unlock()
		return
	}
	c.errMsg = ""
	c.mu.Unlock()
	c.emit()
}

// Proceed hands the payload to the next step.
func (c *Controller) Proceed() (*model.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.busyLocked(); err != nil {
		return nil, err
	}
	if c.payload == nil {
		return nil, errx.Conflict(errx.ErrInvalidTransition, "generate a result before proceeding")
	}
	return c.payload.Clone(), nil
}

// Close unmounts the view. Results arriving afterwards are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
