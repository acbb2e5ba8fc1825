package common

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
	"github.com/RealZimboGuy/flowtrigger/pkg/flowtrigger"
)

const APIKey = "integration-key"

// Node is one engine process: its own executor registration, scheduler and workers, over
// the database configured in GFLOW_DATABASE_*.
type Node struct {
	Engine *flowtrigger.Engine
	Server *httptest.Server
}

// NewNode migrates the configured database and boots an engine on it. The scheduler and
// worker loops are left off so tests drive ticks and tasks themselves.
func NewNode(t *testing.T, name string, clock core.Clock) *Node {
	t.Helper()
	database, err := flowtrigger.DatabaseFromConfig()
	if err != nil {
		t.Fatalf("database config: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := database.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng, err := flowtrigger.NewEngine(db, flowtrigger.EngineOptions{ExecutorName: name}, clock)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := eng.Run(ctx); err != nil {
		t.Fatalf("run engine: %v", err)
	}

	mux := http.NewServeMux()
	eng.RegisterRoutes(mux, APIKey, 0)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &Node{Engine: eng, Server: srv}
}

// Do sends an HTTP request to the node, authenticated with the admin key.
func (n *Node) Do(t *testing.T, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, n.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-API-Key", APIKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := n.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// DoJSON is Do followed by a status check and decoding the response into T.
func DoJSON[T any](t *testing.T, n *Node, method, path string, body []byte, headers map[string]string, wantStatus int) T {
	t.Helper()
	resp := n.Do(t, method, path, body, headers)
	if resp.StatusCode != wantStatus {
		resp.Body.Close()
		t.Fatalf("%s %s: expected status %d, got %d", method, path, wantStatus, resp.StatusCode)
	}
	out, err := util.DecodeJSONBodyResponse[T](resp)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return out
}

// DrainQueue leases every ready task as this node and runs each to completion.
func (n *Node) DrainQueue(t *testing.T, clock core.Clock) int {
	t.Helper()
	ctx := context.Background()
	ran := 0
	for {
		tasks, err := n.Engine.Queue.Lease(ctx, n.Engine.Holder, time.Hour, clock.Now().UTC(), 10)
		if err != nil {
			t.Fatalf("lease: %v", err)
		}
		if len(tasks) == 0 {
			return ran
		}
		for _, task := range tasks {
			n.Engine.Workers.RunTask(ctx, task)
			ran++
		}
	}
}
