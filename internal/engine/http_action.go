package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
)

type httpParams struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	// Body is sent as is; when empty a POST or PUT forwards the execution's trigger payload.
	Body json.RawMessage `json:"body"`
}

// HTTPAction returns an action that calls params.url and fails the step on any non 2xx
// answer. A nil client gets a 25 second timeout.
func HTTPAction(client *http.Client) ActionFunc {
	if client == nil {
		client = &http.Client{Timeout: 25 * time.Second}
	}
	return func(ctx context.Context, in ActionInput) error {
		var p httpParams
		if err := json.Unmarshal(in.Params, &p); err != nil {
			return fmt.Errorf("http params: %w", err)
		}
		if p.URL == "" {
			return fmt.Errorf("http params: url is required")
		}
		if p.Method == "" {
			p.Method = http.MethodPost
		}
		body := []byte(p.Body)
		if len(body) == 0 && (p.Method == http.MethodPost || p.Method == http.MethodPut) {
			body = in.Payload
		}

		req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-Flowtrigger-Execution", in.ExecutionID)
		for k, v := range p.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		// keep a little of the answer for the step's error detail
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status calling %s: %s %s", p.URL, resp.Status, bytes.TrimSpace(snippet))
		}
		slog.DebugContext(ctx, "HTTP step completed", "execution_id", ctx.Value(core.CtxKeyExecutionId),
			"step", in.Step, "status", resp.StatusCode)
		return nil
	}
}
