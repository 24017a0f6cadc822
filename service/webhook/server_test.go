package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/approval"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/parser"
)

type fakeApprovals struct {
	mu       sync.Mutex
	payloads []*parser.Payload
	requests map[string]*model.Request
	params   [][]*dao.Parameter
	listErr  error
}

func (f *fakeApprovals) HandleWebhook(ctx context.Context, payload *parser.Payload) *approval.WebhookResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if payload.IsStatusCallback() {
		return approval.Ignored("status callback")
	}
	return approval.Succeeded("full-id", model.DecisionApproved)
}

func (f *fakeApprovals) Get(ctx context.Context, id string) (*model.Request, error) {
	if r, ok := f.requests[id]; ok {
		return r, nil
	}
	return nil, dao.ErrNotFound
}

func (f *fakeApprovals) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, parameters)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ret []*model.Request
	for _, r := range f.requests {
		ret = append(ret, r)
	}
	return ret, nil
}

type fakeValidator struct {
	valid bool
	url   string
}

func (v *fakeValidator) Valid(callbackURL string, form url.Values, signature string) bool {
	v.url = callbackURL
	return v.valid && signature == "sig"
}

func newRequest(id string) *model.Request {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Request{
		ID:               id,
		FullRequestID:    "full-" + id,
		Description:      "Tool: Bash",
		Requester:        "Claude",
		RecipientAddress: "whatsapp:+15550001111",
		Status:           model.StatusPending,
		CreatedAt:        created,
		ExpiresAt:        created.Add(5 * time.Minute),
	}
}

func newServer(t *testing.T, approvals Approvals, config Config, options ...Option) http.Handler {
	t.Helper()
	srv, err := New(config, approvals, options...)
	require.NoError(t, err)
	return srv.Handler()
}

func postForm(handler http.Handler, path string, form url.Values, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Webhook(t *testing.T) {
	approvals := &fakeApprovals{}
	handler := newServer(t, approvals, DefaultConfig())

	testCases := []struct {
		name       string
		form       url.Values
		wantStatus string
	}{
		{
			name:       "button reply",
			form:       url.Values{"From": {"whatsapp:+15550001111"}, "To": {"whatsapp:+14155238886"}, "ButtonPayload": {"approve_abc12345"}},
			wantStatus: approval.WebhookSuccess,
		},
		{
			name:       "status callback",
			form:       url.Values{"MessageStatus": {"delivered"}, "MessageSid": {"SM1"}},
			wantStatus: approval.WebhookIgnored,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postForm(handler, "/twilio-webhook", tc.form, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			var result approval.WebhookResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tc.wantStatus, result.Status)
		})
	}
	require.Len(t, approvals.payloads, 2)
	assert.Equal(t, "approve_abc12345", approvals.payloads[0].ButtonPayload)
	assert.Equal(t, "whatsapp:+15550001111", approvals.payloads[0].From)
}

func TestServer_WebhookSignature(t *testing.T) {
	config := DefaultConfig()
	config.ValidateSignature = true
	config.PublicURL = "https://example.ngrok.io/"
	form := url.Values{"From": {"whatsapp:+15550001111"}, "Body": {"approve abc12345"}}

	testCases := []struct {
		name      string
		valid     bool
		signature string
		wantCode  int
	}{
		{name: "valid", valid: true, signature: "sig", wantCode: http.StatusOK},
		{name: "missing", valid: true, signature: "", wantCode: http.StatusForbidden},
		{name: "invalid", valid: false, signature: "sig", wantCode: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			approvals := &fakeApprovals{}
			validator := &fakeValidator{valid: tc.valid}
			handler := newServer(t, approvals, config, WithSignatureValidator(validator, "X-Twilio-Signature"))
			rec := postForm(handler, "/twilio-webhook", form, map[string]string{"X-Twilio-Signature": tc.signature})
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, "https://example.ngrok.io/twilio-webhook", validator.url)
			if tc.wantCode == http.StatusOK {
				assert.Len(t, approvals.payloads, 1)
			} else {
				assert.Empty(t, approvals.payloads)
			}
		})
	}
}

func TestServer_Probe(t *testing.T) {
	handler := newServer(t, &fakeApprovals{}, DefaultConfig())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/twilio-webhook", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "webhook endpoint reachable")
}

func TestServer_Health(t *testing.T) {
	testCases := []struct {
		name     string
		listErr  error
		wantCode int
	}{
		{name: "ok", wantCode: http.StatusOK},
		{name: "store down", listErr: fmt.Errorf("database is locked"), wantCode: http.StatusServiceUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newServer(t, &fakeApprovals{listErr: tc.listErr}, DefaultConfig())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	handler := newServer(t, &fakeApprovals{}, DefaultConfig())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Approvals(t *testing.T) {
	hash, err := HashAPIKey("secret")
	require.NoError(t, err)
	config := DefaultConfig()
	config.APIKeyHash = hash
	approvals := &fakeApprovals{requests: map[string]*model.Request{"abc12345": newRequest("abc12345")}}
	handler := newServer(t, approvals, config)

	testCases := []struct {
		name     string
		path     string
		header   map[string]string
		wantCode int
	}{
		{name: "no key", path: "/approvals", wantCode: http.StatusUnauthorized},
		{name: "wrong key", path: "/approvals", header: map[string]string{"X-API-Key": "nope"}, wantCode: http.StatusUnauthorized},
		{name: "list bearer", path: "/approvals", header: map[string]string{"Authorization": "Bearer secret"}, wantCode: http.StatusOK},
		{name: "list api key", path: "/approvals?status=pending&recipient=whatsapp:%2B15550001111", header: map[string]string{"X-API-Key": "secret"}, wantCode: http.StatusOK},
		{name: "invalid status", path: "/approvals?status=bogus", header: map[string]string{"X-API-Key": "secret"}, wantCode: http.StatusBadRequest},
		{name: "get", path: "/approvals/ABC12345", header: map[string]string{"X-API-Key": "secret"}, wantCode: http.StatusOK},
		{name: "get missing", path: "/approvals/zzz", header: map[string]string{"X-API-Key": "secret"}, wantCode: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}

	last := approvals.params[len(approvals.params)-1]
	require.Len(t, last, 2)
	assert.Equal(t, "pending", last[0].Value)
	assert.Equal(t, "+15550001111", last[1].Value)
}

func TestServer_MCPMount(t *testing.T) {
	called := false
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})
	handler := newServer(t, &fakeApprovals{}, DefaultConfig(), WithMCP(mcp))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_StartShutdown(t *testing.T) {
	config := DefaultConfig()
	config.Port = 18741
	srv, err := New(config, &fakeApprovals{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-done)
}

func TestNew_Validation(t *testing.T) {
	config := DefaultConfig()
	config.ValidateSignature = true
	_, err := New(config, &fakeApprovals{})
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil)
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.WebhookPath = "x"
	_, err = New(bad, &fakeApprovals{})
	assert.Error(t, err)
}
