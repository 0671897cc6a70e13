package gateway

import (
	"context"
	"encoding/json"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/credits"
	"github.com/bert-suite/server/internal/suite/intake"
	"github.com/bert-suite/server/internal/suite/wizard"
)

type selectRequest struct {
	Mode string `json:"mode"`
}

type purchaseRequest struct {
	Bundle string `json:"bundle"`
}

type purchaseResponse struct {
	Bundle  credits.Bundle  `json:"bundle"`
	Balance credits.Balance `json:"balance"`
}

type paywallRequest struct {
	Visible bool `json:"visible"`
}

type fieldRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type editRequest struct {
	Result json.RawMessage `json:"result"`
}

type extraRequest struct {
	Name string `json:"name"`
}

type sendRequest struct {
	Text string `json:"text"`
}

// decode reads an optional JSON payload into T.
func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, errx.InvalidInput(err, "Malformed request payload.")
	}
	return v, nil
}

func (s *Server) registerHandlers() {
	s.Handle("suite.tools", false, func(_ context.Context, c *Conn, _ json.RawMessage) (any, error) {
		return c.session.Tools(), nil
	})
	s.Handle("suite.select", false, func(_ context.Context, c *Conn, payload json.RawMessage) (any, error) {
		req, err := decode[selectRequest](payload)
		if err != nil {
			return nil, err
		}
		engine, err := c.session.Select(req.Mode)
		if err != nil {
			return nil, err
		}
		return engine.State(), nil
	})
	s.Handle("suite.back", false, func(_ context.Context, c *Conn, _ json.RawMessage) (any, error) {
		c.session.Back()
		return c.session.State(), nil
	})
	s.Handle("suite.state", false, func(_ context.Context, c *Conn, _ json.RawMessage) (any, error) {
		return c.session.State(), nil
	})

	s.Handle("credits.balance", false, func(_ context.Context, c *Conn, _ json.RawMessage) (any, error) {
		return c.session.Balance(), nil
	})
	s.Handle("credits.bundles", false, func(_ context.Context, c *Conn, _ json.RawMessage) (any, error) {
		return c.session.Bundles(), nil
	})
	s.Handle("credits.purchase", false, func(_ context.Context, c *Conn, payload json.RawMessage) (any, error) {
		req, err := decode[purchaseRequest](payload)
		if err != nil {
			return nil, err
		}
		bundle, err := c.session.Purchase(req.Bundle)
		if err != nil {
			return nil, err
		}
		return purchaseResponse{Bundle: bundle, Balance: c.session.Balance()}, nil
	})
	s.Handle("credits.paywall", false, func(_ context.Context, c *Conn, payload json.RawMessage) (any, error) {
		req, err := decode[paywallRequest](payload)
		if err != nil {
			return nil, err
		}
		c.session.SetPaywall(req.Visible)
		return c.session.Balance(), nil
	})

	s.Handle("intake.field", false, withIntake(func(_ context.Context, in *intake.Controller, payload json.RawMessage) error {
		req, err := decode[fieldRequest](payload)
		if err != nil {
			return err
		}
		return in.SetField(req.Name, req.Value)
	}))
	s.Handle("intake.generate", true, withIntake(func(ctx context.Context, in *intake.Controller, _ json.RawMessage) error {
		return in.Generate(ctx)
	}))
	s.Handle("intake.edit", false, withIntake(func(_ context.Context, in *intake.Controller, payload json.RawMessage) error {
		req, err := decode[editRequest](payload)
		if err != nil {
			return err
		}
		return in.Edit(req.Result)
	}))
	s.Handle("intake.extra", true, withIntake(func(ctx context.Context, in *intake.Controller, payload json.RawMessage) error {
		req, err := decode[extraRequest](payload)
		if err != nil {
			return err
		}
		return in.Extra(ctx, req.Name)
	}))
	s.Handle("intake.dismiss", false, withIntake(func(_ context.Context, in *intake.Controller, _ json.RawMessage) error {
		in.DismissError()
		return nil
	}))
	s.Handle("intake.proceed", false, withEngine(func(_ context.Context, e *wizard.Engine, _ json.RawMessage) error {
		return e.Proceed()
	}))

	s.Handle("processing.start", false, withEngine(func(_ context.Context, e *wizard.Engine, _ json.RawMessage) error {
		return e.StartProcessing()
	}))
	s.Handle("processing.confirm", false, withEngine(func(_ context.Context, e *wizard.Engine, _ json.RawMessage) error {
		return e.Confirm()
	}))
	s.Handle("wizard.reset", false, withEngine(func(_ context.Context, e *wizard.Engine, _ json.RawMessage) error {
		return e.Reset()
	}))

	s.Handle("chat.send", true, func(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
		req, err := decode[sendRequest](payload)
		if err != nil {
			return nil, err
		}
		engine, err := c.session.Engine()
		if err != nil {
			return nil, err
		}
		view, err := engine.Chat()
		if err != nil {
			return nil, err
		}
		if err := view.Send(ctx, req.Text); err != nil {
			return nil, err
		}
		return view.State(), nil
	})
}

// withEngine runs fn against the mounted tool and answers with its state.
func withEngine(fn func(context.Context, *wizard.Engine, json.RawMessage) error) Handler {
	return func(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
		engine, err := c.session.Engine()
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, engine, payload); err != nil {
			return nil, err
		}
		return engine.State(), nil
	}
}

// withIntake runs fn against the mounted intake view and answers with its
// state.
func withIntake(fn func(context.Context, *intake.Controller, json.RawMessage) error) Handler {
	return func(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
		engine, err := c.session.Engine()
		if err != nil {
			return nil, err
		}
		in, err := engine.Intake()
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, in, payload); err != nil {
			return nil, err
		}
		return in.State(), nil
	}
}
