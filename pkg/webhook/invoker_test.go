package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method  string
	Body    string
	Headers http.Header
	Path    string
}

func newRecorder(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var calls []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recordedRequest{Method: r.Method, Body: string(b), Headers: r.Header.Clone(), Path: r.URL.Path})
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type mapStore map[string]any

func (m mapStore) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m mapStore) Set(name string, value any) { m[name] = value }

func (m mapStore) Unset(name string) { delete(m, name) }

func TestInvoker_Invoke_BindsJSONResponse(t *testing.T) {
	srv, calls := newRecorder(t, http.StatusOK, `{"status":"paid","amount":150}`)

	cfg := domain.WebhookConfig{
		URL:          srv.URL + "/orders/{{order_id}}",
		Method:       "post",
		Headers:      map[string]string{"X-Call": "{{call_id}}"},
		BodyTemplate: `{"type":"object","properties":{"order_id":{}}}`,
	}
	vars := mapStore{"order_id": "A1"}

	res, err := New().Invoke(context.Background(), cfg, vars, Builtins{CallID: "c-1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/orders/A1", got.Path)
	assert.Equal(t, "c-1", got.Headers.Get("X-Call"))
	assert.Equal(t, "application/json", got.Headers.Get("Content-Type"))
	assert.JSONEq(t, `{"order_id":"A1"}`, got.Body)

	assert.Equal(t, map[string]any{"status": "paid", "amount": float64(150)}, vars[domain.DefaultResponseVariable])
}

func TestInvoker_Invoke_CustomResponseVariableAndText(t *testing.T) {
	srv, _ := newRecorder(t, http.StatusCreated, "accepted")

	vars := mapStore{}
	res, err := New().Invoke(context.Background(), domain.WebhookConfig{URL: srv.URL, ResponseVariable: "ticket"}, vars, Builtins{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "accepted", vars["ticket"])
}

func TestInvoker_Invoke_BlockedSendsNothing(t *testing.T) {
	srv, calls := newRecorder(t, http.StatusOK, `{}`)

	cfg := domain.WebhookConfig{
		URL:          srv.URL,
		BodyTemplate: `{"type":"object","properties":{"a":{},"b":{}}}`,
	}
	_, err := New().Invoke(context.Background(), cfg, mapStore{"a": "1"}, Builtins{})

	var missing *MissingPropertiesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"b"}, missing.Missing)
	assert.Empty(t, *calls)
}

func TestInvoker_Invoke_FailureLeavesVariableUnbound(t *testing.T) {
	srv, _ := newRecorder(t, http.StatusInternalServerError, `{"error":"boom"}`)

	vars := mapStore{domain.DefaultResponseVariable: map[string]any{"status": "ok"}}
	res, err := New().Invoke(context.Background(), domain.WebhookConfig{URL: srv.URL}, vars, Builtins{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "unexpected status 500", res.Error)
	assert.NotContains(t, vars, domain.DefaultResponseVariable, "an earlier response must not survive a failure")
}

func TestInvoker_Do_GetSendsNoBody(t *testing.T) {
	srv, calls := newRecorder(t, http.StatusOK, `[]`)

	req, err := New().Prepare(domain.WebhookConfig{URL: srv.URL, Method: "GET", BodyTemplate: `{"a":"b"}`}, nil, Builtins{})
	require.NoError(t, err)
	res := New().Do(context.Background(), req)
	assert.True(t, res.Success)
	require.Len(t, *calls, 1)
	assert.Empty(t, (*calls)[0].Body)
}

func TestInvoker_Prepare_GetStillGatedBySchema(t *testing.T) {
	srv, calls := newRecorder(t, http.StatusOK, `{}`)

	cfg := domain.WebhookConfig{
		URL:          srv.URL + "/orders/{{order_id}}",
		Method:       "GET",
		BodyTemplate: `{"type":"object","properties":{"order_id":{},"zip":{}}}`,
	}
	_, err := New().Invoke(context.Background(), cfg, mapStore{"order_id": "A1"}, Builtins{})
	var missing *MissingPropertiesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"zip"}, missing.Missing)
	assert.Empty(t, *calls)

	req, err := New().Prepare(cfg, mapStore{"order_id": "A1", "zip": "94107"}, Builtins{})
	require.NoError(t, err)
	assert.Nil(t, req.Body, "GET sends no body once the gate passes")
	assert.Equal(t, srv.URL+"/orders/A1", req.URL)
}

func TestInvoker_Do_OversizedResponseFails(t *testing.T) {
	srv, _ := newRecorder(t, http.StatusOK, `{"note":"this body is longer than sixteen bytes"}`)

	vars := mapStore{}
	res, err := New(WithMaxResponseBytes(16)).Invoke(context.Background(), domain.WebhookConfig{URL: srv.URL}, vars, Builtins{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "response exceeds 16 bytes", res.Error)
	assert.Nil(t, res.Response)
	assert.NotContains(t, vars, domain.DefaultResponseVariable)

	small, _ := newRecorder(t, http.StatusOK, `{"ok":true}`)
	res = New(WithMaxResponseBytes(11)).Do(context.Background(), Request{URL: small.URL, Method: http.MethodPost})
	assert.True(t, res.Success, "a body exactly at the limit is accepted")
}

func TestInvoker_Do_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	res := New().Do(context.Background(), Request{URL: srv.URL, Method: http.MethodPost, TimeoutSeconds: 1})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInvoker_Do_RejectsMethod(t *testing.T) {
	res := New().Do(context.Background(), Request{URL: "http://127.0.0.1:1", Method: http.MethodDelete})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not allowed")
}

func TestInvoker_Do_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := New().Do(context.Background(), Request{URL: url, Method: http.MethodPost})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, res.StatusCode)
}

func TestResult_JSON(t *testing.T) {
	b, err := json.Marshal(Result{Success: true, StatusCode: 200, Response: map[string]any{"ok": true}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"status_code":200,"response":{"ok":true}}`, string(b))
}
