package pipeline

import (
	"encoding/json"
	"time"

	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/tools"
)

// Request is the input of the intake graph.
type Request struct {
	Tool  *tools.Definition
	Input map[string]string
}

// ExtraRequest is the input of the extra graph.
type ExtraRequest struct {
	Tool    *tools.Definition
	Extra   *tools.Extra
	Payload *model.Payload
}

// RunState stores per-invocation state for the Eino graphs.
// It is registered via compose.WithGenLocalState and touched only inside
// state handlers or compose.ProcessState.
type RunState struct {
	Tool    *tools.Definition
	Input   map[string]string
	Schema  *model.Schema
	Prompt  string
	Raw     json.RawMessage
	Started time.Time
}
