package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bert-suite/server/internal/suite/tools"
)

// TitleOf resolves the display title of a result: the value at the tool's
// dot-separated title field when it is a non-empty scalar, otherwise the tool
// title.
func TitleOf(def *tools.Definition, raw json.RawMessage) string {
	if def == nil {
		return ""
	}
	if def.Intake.TitleField == "" || len(raw) == 0 {
		return def.Title
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return def.Title
	}
	for _, key := range strings.Split(def.Intake.TitleField, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return def.Title
		}
		v = m[key]
	}

	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
	case float64, bool:
		return fmt.Sprint(t)
	}
	return def.Title
}
