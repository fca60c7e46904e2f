// Package payload parses and validates worker invocations. An invocation
// may arrive as a bare JSON object or wrapped in a gateway-style envelope
// whose body field holds the object either inline or as a JSON string.
package payload

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Operation names accepted by the worker.
const (
	OpProcessManipulations = "process_manipulations"
	OpSplitDocument        = "split_document"
	OpHealthCheck          = "health_check"
)

// Invocation is one unit of work for a single document.
type Invocation struct {
	Operation           string         `json:"operation"`
	ImageID             int64          `json:"imageId"`
	SessionID           string         `json:"sessionId,omitempty"`
	Timeout             int            `json:"timeout,omitempty"`
	ProgressCallbackURL string         `json:"progressCallbackUrl,omitempty"`
	Bookmarks           []Bookmark     `json:"bookmarks,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Bookmark is one split point carried in a split_document invocation. It
// mirrors the persisted break row; the pipeline reconciles the two.
type Bookmark struct {
	BookmarkID       int64  `json:"bookmarkId"`
	PageIndex        int    `json:"pageIndex"`
	DocumentTypeID   int64  `json:"documentTypeId"`
	DocumentTypeName string `json:"documentTypeName"`
	DocumentDate     string `json:"documentDate,omitempty"`
	Comments         string `json:"comments,omitempty"`
}

type envelope struct {
	Body json.RawMessage `json:"body"`
}

var compiledSchema = jsonschema.MustCompileString("invocation.schema.json", invocationSchema)

// Parse decodes raw into a validated Invocation. A missing session id is
// filled with a fresh UUID so progress events always have a correlation key.
func Parse(raw []byte) (*Invocation, error) {
	body, err := unwrap(raw)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("invalid invocation JSON: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("invocation failed validation: %w", err)
	}

	var inv Invocation
	if err := json.Unmarshal(body, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invocation: %w", err)
	}
	if inv.SessionID == "" {
		inv.SessionID = uuid.NewString()
	}
	return &inv, nil
}

// unwrap peels the optional envelope. The body may itself be a JSON-encoded
// string holding the payload object.
func unwrap(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("empty invocation")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Body) > 0 {
		inner := strings.TrimSpace(string(env.Body))
		if strings.HasPrefix(inner, `"`) {
			var s string
			if err := json.Unmarshal(env.Body, &s); err != nil {
				return nil, fmt.Errorf("invalid envelope body: %w", err)
			}
			return []byte(s), nil
		}
		return env.Body, nil
	}
	return raw, nil
}
