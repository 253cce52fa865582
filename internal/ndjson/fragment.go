package ndjson

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reddiedev/tenext-app/internal/model"
)

// ErrMalformedFrame is returned for a line that is not a JSON object.
var ErrMalformedFrame = errors.New("malformed stream frame")

type wireFragment struct {
	Content json.RawMessage `json:"content"`
	Source  json.RawMessage `json:"source"`
}

// ParseFragment decodes one frame. A content or source field of the wrong
// type is treated as absent rather than as an error.
func ParseFragment(line string) (model.StreamFragment, error) {
	var w wireFragment
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return model.StreamFragment{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return model.StreamFragment{
		Content: stringField(w.Content),
		Source:  stringField(w.Source),
	}, nil
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
