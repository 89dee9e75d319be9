// ABOUTME: Dispatches model-requested tool calls to their owning services over HTTP
// ABOUTME: Failures become structured error turns; a dispatch never aborts its batch

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/symphonylabs/symphony/internal/turn"
)

// Dispatcher resolves tool calls against the registry and invokes the owning
// service. It never returns an error past the orchestrator boundary: every
// dispatch yields a well-formed tool-role message, carrying either the
// service's response payload or an error payload the model can react to.
type Dispatcher struct {
	registry *Registry
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. A zero timeout disables the per-call
// deadline. Pass nil logger for default.
func NewDispatcher(registry *Registry, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		client:   &http.Client{},
		timeout:  timeout,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch invokes a single tool call and returns the resulting tool message.
func (d *Dispatcher) Dispatch(ctx context.Context, call turn.ToolCall) turn.Message {
	name := call.Function.Name

	route, err := d.registry.RouteFor(name)
	if err != nil {
		// Unroutable name: immediate local error turn, no network call.
		d.logger.Warn("unroutable tool call", "name", name, "tool_call_id", call.ID)
		return errorResult(call, err)
	}

	var args any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return errorResult(call, fmt.Errorf("parsing arguments: %w", err))
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	body, err := json.Marshal(args)
	if err != nil {
		return errorResult(call, fmt.Errorf("encoding arguments: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route, bytes.NewReader(body))
	if err != nil {
		return errorResult(call, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("tool call failed", "name", name, "error", err)
		return errorResult(call, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult(call, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorResult(call, fmt.Errorf("service returned status %d", resp.StatusCode))
	}

	// The response payload is wrapped verbatim, re-encoded as JSON text.
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return errorResult(call, fmt.Errorf("parsing response: %w", err))
	}
	content, err := json.Marshal(decoded)
	if err != nil {
		return errorResult(call, fmt.Errorf("encoding response: %w", err))
	}

	d.logger.Debug("tool call completed", "name", name, "tool_call_id", call.ID)
	return turn.ToolResult(call.ID, name, string(content))
}

// DispatchAll invokes every call concurrently and joins on all of them.
// Results are returned in the same order as the input batch regardless of
// completion order; individual failures never abort the batch.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []turn.ToolCall) []turn.Message {
	if len(calls) == 0 {
		return nil
	}

	return iter.Map(calls, func(call *turn.ToolCall) turn.Message {
		return d.Dispatch(ctx, *call)
	})
}

// errorResult wraps a dispatch failure as a tool message with an error
// payload, surfacing it to the model on the next round.
func errorResult(call turn.ToolCall, err error) turn.Message {
	content, _ := json.Marshal(map[string]string{"errorMessage": err.Error()})
	return turn.ToolResult(call.ID, call.Function.Name, string(content))
}
