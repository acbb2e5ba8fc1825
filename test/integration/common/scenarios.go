package common

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/controllers"
	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/models"
	"github.com/RealZimboGuy/flowtrigger/internal/util"
	"github.com/RealZimboGuy/flowtrigger/internal/webhook"
	"github.com/google/uuid"
)

// Start is the fake clock origin shared by every scenario.
var Start = time.Date(2024, 3, 1, 9, 0, 30, 0, time.UTC)

func definition(name string) []byte {
	return []byte(fmt.Sprintf(`{"name":%q,"steps":[{"name":"greet","action":"log","params":{"message":"hello"}},{"name":"pause","action":"sleep","params":{"duration":"1ms"}}]}`, name))
}

func workflowID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func executions(t *testing.T, n *Node, wf string) []models.ExecutionResponse {
	t.Helper()
	return DoJSON[[]models.ExecutionResponse](t, n, "GET", "/api/workflows/"+wf+"/executions?limit=100", nil, nil, http.StatusOK)
}

// ScheduledRun configures a schedule over HTTP, advances the clock past the occurrence and
// checks the run lands as a succeeded execution pinned to the current version.
func ScheduledRun(t *testing.T) {
	clock := core.NewFakeClock(Start)
	node := NewNode(t, "scheduled", clock)
	wf := workflowID("scheduled")

	v := DoJSON[models.VersionResponse](t, node, "POST", "/api/workflows/"+wf+"/versions", definition(wf), nil, http.StatusCreated)
	if v.Version != 1 {
		t.Fatalf("expected version 1, got %d", v.Version)
	}
	sched := DoJSON[models.ScheduleResponse](t, node, "PUT", "/api/workflows/"+wf+"/schedule",
		[]byte(`{"cron":"*/5 * * * *","timezone":"Europe/London","enabled":true}`), nil, http.StatusOK)
	if sched.NextRunAt == nil || !sched.NextRunAt.Equal(time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %v", sched.NextRunAt)
	}

	clock.Set(Start.Add(5 * time.Minute))
	node.Engine.Scheduler.Tick(context.Background())
	node.DrainQueue(t, clock)

	list := executions(t, node, wf)
	if len(list) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(list))
	}
	exec := DoJSON[models.ExecutionResponse](t, node, "GET", "/api/executions/"+list[0].ID, nil, nil, http.StatusOK)
	if exec.Status != "succeeded" || exec.TriggerSource != "schedule" || exec.Version != 1 {
		t.Errorf("unexpected execution %+v", exec)
	}
	if len(exec.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(exec.Steps))
	}

	sched = DoJSON[models.ScheduleResponse](t, node, "GET", "/api/workflows/"+wf+"/schedule", nil, nil, http.StatusOK)
	if sched.NextRunAt == nil || !sched.NextRunAt.Equal(time.Date(2024, 3, 1, 9, 10, 0, 0, time.UTC)) {
		t.Errorf("schedule did not advance, next run %v", sched.NextRunAt)
	}
	if sched.LastRunAt == nil {
		t.Error("expected last run to be recorded")
	}
}

// ConcurrentSchedulers runs two engine nodes against one database and ticks them in
// parallel over several occurrences; every occurrence must produce exactly one execution.
func ConcurrentSchedulers(t *testing.T) {
	clock := core.NewFakeClock(Start)
	a := NewNode(t, "node-a", clock)
	b := NewNode(t, "node-b", clock)
	ctx := context.Background()

	wfs := []string{workflowID("contended"), workflowID("contended"), workflowID("contended")}
	for _, wf := range wfs {
		DoJSON[models.VersionResponse](t, a, "POST", "/api/workflows/"+wf+"/versions", definition(wf), nil, http.StatusCreated)
		DoJSON[models.ScheduleResponse](t, a, "PUT", "/api/workflows/"+wf+"/schedule",
			[]byte(`{"cron":"* * * * *","timezone":"UTC","enabled":true}`), nil, http.StatusOK)
	}

	const occurrences = 3
	for i := 1; i <= occurrences; i++ {
		clock.Set(Start.Add(time.Duration(i) * time.Minute))
		var wg sync.WaitGroup
		for _, n := range []*Node{a, b, a, b} {
			wg.Add(1)
			go func(n *Node) {
				defer wg.Done()
				n.Engine.Scheduler.Tick(ctx)
			}(n)
		}
		wg.Wait()
	}
	a.DrainQueue(t, clock)
	b.DrainQueue(t, clock)

	for _, wf := range wfs {
		list := executions(t, a, wf)
		if len(list) != occurrences {
			t.Errorf("%s: expected %d executions, got %d", wf, occurrences, len(list))
		}
		for _, e := range list {
			if e.Status != "succeeded" {
				t.Errorf("%s: execution %s is %s", wf, e.ID, e.Status)
			}
		}
	}
}

// WebhookDelivery creates a trigger, delivers the same signed request concurrently and
// checks retries collapse onto one execution, then that revocation stops intake.
func WebhookDelivery(t *testing.T) {
	clock := core.NewFakeClock(Start)
	node := NewNode(t, "webhook", clock)
	wf := workflowID("hooked")

	DoJSON[models.VersionResponse](t, node, "POST", "/api/workflows/"+wf+"/versions", definition(wf), nil, http.StatusCreated)
	trigger := DoJSON[models.TriggerResponse](t, node, "POST", "/api/workflows/"+wf+"/triggers",
		[]byte(`{"rateLimitQuota":20,"rateLimitWindow":"1m"}`), nil, http.StatusCreated)
	if trigger.Secret == "" {
		t.Fatal("expected the secret on creation")
	}

	body := []byte(`{"action":"opened","number":7}`)
	sig, err := webhook.Sign(webhook.SchemeBLAKE2b, trigger.Secret, body)
	if err != nil {
		t.Fatal(err)
	}
	headers := map[string]string{controllers.SignatureHeader: sig, controllers.DeliveryHeader: "delivery-1"}

	results := make(chan *http.Response, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest("POST", node.Server.URL+"/hooks/"+trigger.ID, bytes.NewReader(body))
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			resp, err := node.Server.Client().Do(req)
			if err != nil {
				t.Errorf("deliver: %v", err)
				return
			}
			results <- resp
		}()
	}
	wg.Wait()
	close(results)
	first := ""
	for resp := range results {
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("expected 202, got %d", resp.StatusCode)
			resp.Body.Close()
			continue
		}
		exec, err := util.DecodeJSONBodyResponse[models.ExecutionResponse](resp)
		if err != nil {
			t.Fatal(err)
		}
		if first == "" {
			first = exec.ID
		} else if exec.ID != first {
			t.Errorf("retried delivery created a second execution %s != %s", exec.ID, first)
		}
	}
	if first == "" {
		t.Fatal("no delivery was accepted")
	}

	node.DrainQueue(t, clock)
	exec := DoJSON[models.ExecutionResponse](t, node, "GET", "/api/executions/"+first, nil, nil, http.StatusOK)
	if exec.Status != "succeeded" || exec.TriggerSource != "webhook" {
		t.Errorf("unexpected execution %+v", exec)
	}

	bad := map[string]string{controllers.SignatureHeader: "sha256=00", controllers.DeliveryHeader: "delivery-2"}
	if resp := node.Do(t, "POST", "/hooks/"+trigger.ID, body, bad); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bad signature, got %d", resp.StatusCode)
	}

	if resp := node.Do(t, "DELETE", "/api/triggers/"+trigger.ID, nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke: expected 204, got %d", resp.StatusCode)
	}
	headers[controllers.DeliveryHeader] = "delivery-3"
	if resp := node.Do(t, "POST", "/hooks/"+trigger.ID, body, headers); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after revocation, got %d", resp.StatusCode)
	}
	if got := len(executions(t, node, wf)); got != 1 {
		t.Errorf("expected 1 execution, got %d", got)
	}
}

// VersionPinning saves a new version between dispatch and execution; the queued run must
// still execute the version it was dispatched with.
func VersionPinning(t *testing.T) {
	clock := core.NewFakeClock(Start)
	node := NewNode(t, "pinning", clock)
	wf := workflowID("pinned")

	DoJSON[models.VersionResponse](t, node, "POST", "/api/workflows/"+wf+"/versions", definition(wf), nil, http.StatusCreated)
	run := DoJSON[models.ExecutionResponse](t, node, "POST", "/api/workflows/"+wf+"/run", nil,
		map[string]string{controllers.IdempotencyHeader: "manual-1"}, http.StatusAccepted)

	failing := []byte(`{"name":"broken","steps":[{"name":"boom","action":"fail","params":{"message":"v2"}}]}`)
	DoJSON[models.VersionResponse](t, node, "POST", "/api/workflows/"+wf+"/versions", failing, nil, http.StatusCreated)

	node.DrainQueue(t, clock)
	exec := DoJSON[models.ExecutionResponse](t, node, "GET", "/api/executions/"+run.ID, nil, nil, http.StatusOK)
	if exec.Version != 1 || exec.Status != "succeeded" {
		t.Errorf("expected v1 to succeed, got v%d %s", exec.Version, exec.Status)
	}

	run = DoJSON[models.ExecutionResponse](t, node, "POST", "/api/workflows/"+wf+"/run", nil,
		map[string]string{controllers.IdempotencyHeader: "manual-2"}, http.StatusAccepted)
	node.DrainQueue(t, clock)
	exec = DoJSON[models.ExecutionResponse](t, node, "GET", "/api/executions/"+run.ID, nil, nil, http.StatusOK)
	if exec.Version != 2 || exec.Status != "failed" || exec.ErrorDetail == "" {
		t.Errorf("expected v2 to fail with detail, got v%d %s %q", exec.Version, exec.Status, exec.ErrorDetail)
	}
}
