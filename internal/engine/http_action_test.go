package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAction_ForwardsPayload(t *testing.T) {
	var gotBody, gotExec, gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotMethod = string(b), r.Method
		gotExec, gotAuth = r.Header.Get("X-Flowtrigger-Execution"), r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	params, _ := json.Marshal(map[string]any{"url": srv.URL, "headers": map[string]string{"Authorization": "Bearer t"}})
	err := HTTPAction(srv.Client())(context.Background(), ActionInput{
		ExecutionID: "e-1",
		Params:      params,
		Payload:     json.RawMessage(`{"ref":"main"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"ref":"main"}`, gotBody)
	assert.Equal(t, "e-1", gotExec)
	assert.Equal(t, "Bearer t", gotAuth)
}

func TestHTTPAction_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	params, _ := json.Marshal(map[string]any{"url": srv.URL, "method": "GET"})
	err := HTTPAction(srv.Client())(context.Background(), ActionInput{Params: params})

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"), err.Error())
	assert.Contains(t, err.Error(), "upstream down")
}

func TestHTTPAction_BadParams(t *testing.T) {
	fn := HTTPAction(nil)
	assert.Error(t, fn(context.Background(), ActionInput{Params: json.RawMessage(`{}`)}))
	assert.Error(t, fn(context.Background(), ActionInput{Params: json.RawMessage(`nope`)}))
}
