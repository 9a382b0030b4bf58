package tipinject

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
)

// BindingName is the page binding the helper script reports events through.
const BindingName = "tipshieldEvent"

// HelperScript installs window.__tipshield in a document and wires the
// visibility, mutation and click reports to BindingName.
//
//go:embed tip.js
var HelperScript string

// Page is the document a loop reconciles. Apply re-checks each container's
// marker count before acting, so a stale scan cannot double insert.
type Page interface {
	Scan(ctx context.Context, layouts []Layout) ([]ContainerState, error)
	Apply(ctx context.Context, ops []Op) (ApplyResult, error)
}

// ApplyResult counts what Apply actually did.
type ApplyResult struct {
	Inserted int `json:"inserted"`
	Removed  int `json:"removed"`
	Skipped  int `json:"skipped"`
}

// Event kinds reported by the helper script.
const (
	EventReady      = "ready"
	EventVisibility = "visibility"
	EventMutation   = "mutation"
	EventTip        = "tip"
)

// PageEvent is one binding payload.
type PageEvent struct {
	Kind   string `json:"kind"`
	Hidden bool   `json:"hidden,omitempty"`
	Click
}

// ParsePageEvent decodes a binding payload.
func ParsePageEvent(payload string) (PageEvent, error) {
	var ev PageEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return PageEvent{}, fmt.Errorf("tipinject: decode page event: %w", err)
	}
	switch ev.Kind {
	case EventReady, EventVisibility, EventMutation, EventTip:
		return ev, nil
	default:
		return PageEvent{}, fmt.Errorf("tipinject: unknown page event %q", ev.Kind)
	}
}

// ScanExpression is the JS that scans the current document for layouts.
func ScanExpression(layouts []Layout) (string, error) {
	b, err := json.Marshal(layouts)
	if err != nil {
		return "", fmt.Errorf("tipinject: marshal layouts: %w", err)
	}
	return "window.__tipshield ? window.__tipshield.scan(" + string(b) + ") : null", nil
}

// ApplyExpression is the JS that applies ops to the current document.
func ApplyExpression(ops []Op) (string, error) {
	b, err := json.Marshal(ops)
	if err != nil {
		return "", fmt.Errorf("tipinject: marshal ops: %w", err)
	}
	return "window.__tipshield ? window.__tipshield.apply(" + string(b) + ") : null", nil
}
