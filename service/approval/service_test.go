package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/approver/internal/idgen"
	"github.com/viant/approver/model"
	"github.com/viant/approver/policy"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/dao/request/memory"
	"github.com/viant/approver/service/dispatcher"
	qmem "github.com/viant/approver/service/messaging/memory"
	"github.com/viant/approver/service/parser"
)

const (
	recipient = "+15550001111"
	channel   = "whatsapp:+14155238886"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDispatcher struct {
	mu      sync.Mutex
	sendErr error
	sent    []string
}

func (d *fakeDispatcher) Send(_ context.Context, to, id, description string) (*dispatcher.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return nil, d.sendErr
	}
	d.sent = append(d.sent, id)
	return &dispatcher.Handle{MessageID: "SM" + id}, nil
}

func (d *fakeDispatcher) Confirm(context.Context, *model.Confirmation) error { return nil }

type fixture struct {
	clock  *fakeClock
	store  *memory.Service
	send   *fakeDispatcher
	outbox *qmem.Queue[model.Confirmation]
	srv    *Service
	onTick func(now time.Time)
	ticks  int
}

func newFixture(t *testing.T, options ...Option) *fixture {
	f := &fixture{
		clock:  &fakeClock{now: t0},
		store:  memory.New(),
		send:   &fakeDispatcher{},
		outbox: qmem.NewQueue[model.Confirmation](qmem.DefaultConfig()),
	}
	config := DefaultConfig()
	config.Recipient = "whatsapp:" + recipient
	sleeper := func(d time.Duration) <-chan time.Time {
		f.ticks++
		f.clock.Advance(d)
		if f.onTick != nil {
			f.onTick(f.clock.Now())
		}
		ch := make(chan time.Time, 1)
		ch <- f.clock.Now()
		return ch
	}
	all := append([]Option{
		WithConfig(config),
		WithClock(f.clock.Now),
		WithSleeper(sleeper),
		WithOutbox(f.outbox),
	}, options...)
	srv, err := New(f.store, f.send, all...)
	require.NoError(t, err)
	f.srv = srv
	return f
}

func stubIDs(t *testing.T, ids ...string) {
	previous := idgen.NewFunc
	i := 0
	idgen.NewFunc = func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
	t.Cleanup(func() { idgen.NewFunc = previous })
}

func reply(body string) *parser.Payload {
	return &parser.Payload{From: "whatsapp:" + recipient, To: channel, Body: body}
}

func writeCall() *ToolCall {
	return &ToolCall{ToolName: "Write", Input: map[string]interface{}{"file_path": "/tmp/x"}}
}

func TestService_RequestApproval_ApprovedByReply(t *testing.T) {
	stubIDs(t, "abc12345-1111-4111-8111-111111111111")
	f := newFixture(t)
	var webhook *WebhookResult
	f.onTick = func(now time.Time) {
		if now.Equal(t0.Add(10 * time.Second)) {
			webhook = f.srv.HandleWebhook(context.Background(), reply("approve abc12345"))
		}
	}

	outcome := f.srv.RequestApproval(context.Background(), writeCall())
	require.NotNil(t, webhook)
	assert.Equal(t, Succeeded("abc12345-1111-4111-8111-111111111111", model.DecisionApproved), webhook)
	assert.Equal(t, OutcomeApproved, outcome.Kind)
	assert.True(t, outcome.IsApproved())
	assert.Equal(t, "abc12345", outcome.RequestID)
	assert.Equal(t, 10*time.Second, outcome.Waited)

	stored, err := f.store.Load(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
	assert.Equal(t, recipient, stored.RecipientAddress)
	assert.Equal(t, "Claude", stored.Requester)
	assert.Equal(t, t0.Add(5*time.Minute), stored.ExpiresAt)
	require.NotNil(t, stored.RespondedAt)
	assert.Equal(t, t0.Add(10*time.Second), *stored.RespondedAt)
	assert.Equal(t, "approve abc12345", *stored.ResponseText)
	assert.Equal(t, []string{"abc12345"}, f.send.sent)

	msg, err := f.outbox.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &model.Confirmation{
		RequestID: "abc12345",
		Decision:  model.DecisionApproved,
		From:      channel,
		To:        "whatsapp:" + recipient,
	}, msg.T())
}

func TestService_RequestApproval_Denied(t *testing.T) {
	stubIDs(t, "abc12345-1111-4111-8111-111111111111")
	f := newFixture(t)
	f.onTick = func(now time.Time) {
		if now.Equal(t0.Add(4 * time.Second)) {
			f.srv.HandleWebhook(context.Background(), &parser.Payload{
				From: "whatsapp:" + recipient, To: channel, ButtonPayload: "deny_abc12345", ButtonText: "Deny",
			})
		}
	}
	outcome := f.srv.RequestApproval(context.Background(), writeCall())
	assert.Equal(t, OutcomeDenied, outcome.Kind)
}

func TestService_RequestApproval_Expired(t *testing.T) {
	stubIDs(t, "abc12345-1111-4111-8111-111111111111")
	f := newFixture(t)

	outcome := f.srv.RequestApproval(context.Background(), writeCall())
	assert.Equal(t, OutcomeError, outcome.Kind)
	assert.Equal(t, "expired", outcome.Reason)
	assert.ErrorIs(t, outcome.Err, ErrExpired)
	assert.True(t, outcome.Waited > 5*time.Minute)
	assert.True(t, outcome.Waited <= 5*time.Minute+f.srv.Config().PollInterval)

	// a late reply is rejected and the record stays pending
	f.clock.Set(t0.Add(5*time.Minute + 30*time.Second))
	result := f.srv.HandleWebhook(context.Background(), reply("APPROVE abc12345"))
	assert.Equal(t, Errored("expired"), result)
	stored, err := f.store.Load(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Nil(t, stored.RespondedAt)
	assert.Nil(t, stored.ResponseText)
	assert.Equal(t, 0, f.outbox.Size())
}

func TestService_RequestApproval_SendFailed(t *testing.T) {
	stubIDs(t, "abc12345-1111-4111-8111-111111111111")
	f := newFixture(t)
	f.send.sendErr = errors.New("twilio unavailable")

	outcome := f.srv.RequestApproval(context.Background(), writeCall())
	assert.Equal(t, OutcomeError, outcome.Kind)
	assert.Equal(t, "send failed", outcome.Reason)
	assert.ErrorContains(t, outcome.Err, "twilio unavailable")

	_, err := f.store.Load(context.Background(), "abc12345")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	all, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, f.ticks)
}

func TestService_RequestApproval_DispatcherNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.send.sendErr = dispatcher.ErrNotConfigured
	outcome := f.srv.RequestApproval(context.Background(), writeCall())
	assert.Equal(t, "not configured", outcome.Reason)
	all, _ := f.store.List(context.Background())
	assert.Empty(t, all)
}

func TestService_RequestApproval_NoRecipient(t *testing.T) {
	config := DefaultConfig()
	f := newFixture(t, WithConfig(config))
	outcome := f.srv.RequestApproval(context.Background(), writeCall())
	assert.Equal(t, OutcomeError, outcome.Kind)
	assert.Equal(t, "not configured", outcome.Reason)
	assert.Empty(t, f.send.sent)
	all, _ := f.store.List(context.Background())
	assert.Empty(t, all)
}

func TestService_RequestApproval_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.onTick = func(now time.Time) {
		if now.Equal(t0.Add(6 * time.Second)) {
			cancel()
		}
	}
	outcome := f.srv.RequestApproval(ctx, writeCall())
	assert.Equal(t, OutcomeError, outcome.Kind)
	assert.Equal(t, "cancelled", outcome.Reason)
}

func TestService_RequestApproval_IDCollision(t *testing.T) {
	testCases := []struct {
		name      string
		ids       []string
		expectID  string
		expectErr bool
	}{
		{
			name:     "regenerates after collision",
			ids:      []string{"abc12345-0000-4000-8000-000000000001", "def67890-0000-4000-8000-000000000002"},
			expectID: "def67890",
		},
		{
			name:      "gives up after repeated collisions",
			ids:       []string{"abc12345-0000-4000-8000-000000000001"},
			expectErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.store.Create(context.Background(), &model.Request{
				ID: "abc12345", FullRequestID: "existing", Status: model.StatusPending,
				RecipientAddress: recipient, CreatedAt: t0, ExpiresAt: t0.Add(time.Minute),
			}))
			stubIDs(t, tc.ids...)
			f.onTick = func(now time.Time) {
				if now.Equal(t0.Add(2 * time.Second)) {
					f.srv.HandleWebhook(context.Background(), reply("approve "+tc.expectID))
				}
			}
			outcome := f.srv.RequestApproval(context.Background(), writeCall())
			if tc.expectErr {
				assert.Equal(t, OutcomeError, outcome.Kind)
				assert.ErrorIs(t, outcome.Err, dao.ErrDuplicateID)
				return
			}
			assert.Equal(t, OutcomeApproved, outcome.Kind)
			assert.Equal(t, tc.expectID, outcome.RequestID)
		})
	}
}

type failingLoadStore struct {
	*memory.Service
}

func (s *failingLoadStore) Load(context.Context, string) (*model.Request, error) {
	return nil, errors.New("database is locked")
}

func TestService_WaitForDecision_TimedOut(t *testing.T) {
	f := newFixture(t)
	srv, err := New(&failingLoadStore{Service: f.store}, f.send,
		WithConfig(f.srv.Config()), WithClock(f.clock.Now), WithSleeper(f.srv.after))
	require.NoError(t, err)

	outcome := srv.WaitForDecision(context.Background(), "abc12345")
	assert.Equal(t, "timed out", outcome.Reason)
	assert.True(t, outcome.Waited > srv.Config().WaitBudget)
	assert.True(t, outcome.Waited <= srv.Config().WaitBudget+srv.Config().PollInterval)
}

func TestService_WaitForDecision_NotFound(t *testing.T) {
	f := newFixture(t)
	outcome := f.srv.WaitForDecision(context.Background(), "missing1")
	assert.Equal(t, "request not found", outcome.Reason)
}

type interleavingStore struct {
	*memory.Service
	afterLoad func(r *model.Request)
}

func (s *interleavingStore) Load(ctx context.Context, id string) (*model.Request, error) {
	r, err := s.Service.Load(ctx, id)
	if err == nil && s.afterLoad != nil {
		s.afterLoad(r)
	}
	return r, err
}

func TestService_WaitForDecision_DecidedAfterRead(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Create(context.Background(), &model.Request{
		ID: "abc12345", FullRequestID: "abc12345-full", Status: model.StatusPending,
		RecipientAddress: recipient, CreatedAt: t0, ExpiresAt: t0.Add(5 * time.Minute),
	}))
	f.clock.Set(t0.Add(4*time.Minute + 58*time.Second))

	var webhook *WebhookResult
	store := &interleavingStore{Service: f.store}
	store.afterLoad = func(r *model.Request) {
		if webhook != nil || r.Status != model.StatusPending {
			return
		}
		f.clock.Set(t0.Add(4*time.Minute + 59*time.Second))
		webhook = f.srv.HandleWebhook(context.Background(), reply("approve abc12345"))
		f.clock.Set(t0.Add(5*time.Minute + time.Second))
	}
	srv, err := New(store, f.send,
		WithConfig(f.srv.Config()), WithClock(f.clock.Now), WithSleeper(f.srv.after))
	require.NoError(t, err)

	outcome := srv.WaitForDecision(context.Background(), "abc12345")
	require.NotNil(t, webhook)
	assert.Equal(t, Succeeded("abc12345-full", model.DecisionApproved), webhook)
	stored, err := f.store.Load(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
	assert.Equal(t, OutcomeApproved, outcome.Kind)
}

func TestService_HandleWebhook(t *testing.T) {
	pending := func() *model.Request {
		return &model.Request{
			ID: "abc12345", FullRequestID: "abc12345-full", Description: "*Tool:* Write",
			Requester: "Claude", RecipientAddress: recipient, Status: model.StatusPending,
			CreatedAt: t0, ExpiresAt: t0.Add(5 * time.Minute),
		}
	}
	testCases := []struct {
		name          string
		payload       *parser.Payload
		expect        *WebhookResult
		expectStatus  model.Status
		expectConfirm bool
	}{
		{
			name:         "status callback",
			payload:      &parser.Payload{MessageStatus: "delivered", MessageSid: "SM1"},
			expect:       Ignored("status callback"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "missing sender",
			payload:      &parser.Payload{Body: "approve abc12345"},
			expect:       Errored("missing From field"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "unknown button action",
			payload:      &parser.Payload{From: "whatsapp:" + recipient, ButtonPayload: "foo_abc12345"},
			expect:       Ignored("unknown_action"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "empty body",
			payload:      &parser.Payload{From: "whatsapp:" + recipient, Body: "  "},
			expect:       Ignored("empty_body"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "malformed text",
			payload:      reply("approve"),
			expect:       Ignored("malformed_payload"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "button extra delimiter",
			payload:      &parser.Payload{From: "whatsapp:" + recipient, ButtonPayload: "approve_abc12345_extra"},
			expect:       Ignored("malformed_payload"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "id with path",
			payload:      reply("approve ../../tmp/x"),
			expect:       Ignored("malformed_payload"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "other recipient",
			payload:      &parser.Payload{From: "whatsapp:+15559999999", To: channel, Body: "approve abc12345"},
			expect:       Errored("request not found"),
			expectStatus: model.StatusPending,
		},
		{
			name:         "unknown id",
			payload:      reply("approve ffff0000"),
			expect:       Errored("request not found"),
			expectStatus: model.StatusPending,
		},
		{
			name:          "list approve",
			payload:       &parser.Payload{From: "whatsapp:" + recipient, To: channel, ListID: "approve:abc12345"},
			expect:        Succeeded("abc12345-full", model.DecisionApproved),
			expectStatus:  model.StatusApproved,
			expectConfirm: true,
		},
		{
			name:          "bare sender deny",
			payload:       &parser.Payload{From: recipient, To: channel, Body: "Deny ABC12345"},
			expect:        Succeeded("abc12345-full", model.DecisionDenied),
			expectStatus:  model.StatusDenied,
			expectConfirm: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.clock.Set(t0.Add(10 * time.Second))
			require.NoError(t, f.store.Create(context.Background(), pending()))

			result := f.srv.HandleWebhook(context.Background(), tc.payload)
			assert.Equal(t, tc.expect, result)
			stored, err := f.store.Load(context.Background(), "abc12345")
			require.NoError(t, err)
			assert.Equal(t, tc.expectStatus, stored.Status)
			if tc.expectConfirm {
				assert.Equal(t, 1, f.outbox.Size())
			} else {
				assert.Equal(t, 0, f.outbox.Size())
				assert.Nil(t, stored.RespondedAt)
			}
		})
	}
}

func TestService_HandleWebhook_Idempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Create(context.Background(), &model.Request{
		ID: "abc12345", FullRequestID: "abc12345-full", RecipientAddress: recipient,
		Status: model.StatusPending, CreatedAt: t0, ExpiresAt: t0.Add(5 * time.Minute),
	}))
	f.clock.Set(t0.Add(10 * time.Second))
	first := f.srv.HandleWebhook(context.Background(), reply("approve abc12345"))
	assert.Equal(t, WebhookSuccess, first.Status)

	f.clock.Set(t0.Add(20 * time.Second))
	second := f.srv.HandleWebhook(context.Background(), reply("deny abc12345"))
	assert.Equal(t, Errored("already processed"), second)

	stored, err := f.store.Load(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
	assert.Equal(t, t0.Add(10*time.Second), *stored.RespondedAt)
	assert.Equal(t, "approve abc12345", *stored.ResponseText)
	assert.Equal(t, 1, f.outbox.Size())
}

func TestService_ConcurrentWaitAndWebhook(t *testing.T) {
	config := DefaultConfig()
	config.Recipient = recipient
	config.PollInterval = 5 * time.Millisecond
	config.ValidityWindow = 5 * time.Second
	config.WaitBudget = 5 * time.Second
	store := memory.New()
	srv, err := New(store, &fakeDispatcher{}, WithConfig(config))
	require.NoError(t, err)

	outcomes := make(chan *Outcome, 1)
	go func() { outcomes <- srv.RequestApproval(context.Background(), writeCall()) }()

	var pending []*model.Request
	require.Eventually(t, func() bool {
		pending, err = srv.ListPending(context.Background(), recipient)
		return err == nil && len(pending) == 1
	}, 2*time.Second, time.Millisecond)

	results := make(chan *WebhookResult, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- srv.HandleWebhook(context.Background(), reply("approve "+pending[0].ID))
		}()
	}
	wg.Wait()
	close(results)
	succeeded := 0
	for result := range results {
		if result.Status == WebhookSuccess {
			succeeded++
			continue
		}
		assert.Equal(t, Errored("already processed"), result)
	}
	assert.Equal(t, 1, succeeded)

	select {
	case outcome := <-outcomes:
		assert.Equal(t, OutcomeApproved, outcome.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("wait loop did not observe the decision")
	}
}

func TestService_ListPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, r := range []*model.Request{
		{ID: "aaaa0001", FullRequestID: "1", RecipientAddress: recipient, Status: model.StatusPending, CreatedAt: t0, ExpiresAt: t0.Add(time.Minute)},
		{ID: "aaaa0002", FullRequestID: "2", RecipientAddress: recipient, Status: model.StatusPending, CreatedAt: t0, ExpiresAt: t0.Add(-time.Second)},
		{ID: "aaaa0003", FullRequestID: "3", RecipientAddress: "+15559999999", Status: model.StatusPending, CreatedAt: t0, ExpiresAt: t0.Add(time.Minute)},
	} {
		require.NoError(t, f.store.Create(ctx, r))
	}
	mine, err := f.srv.ListPending(ctx, "whatsapp:"+recipient)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "aaaa0001", mine[0].ID)

	all, err := f.srv.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestService_RequestApproval_Policy(t *testing.T) {
	testCases := []struct {
		name      string
		configure *policy.Policy
		override  *policy.Policy
		tool      string
		wantKind  OutcomeKind
	}{
		{name: "allowed tool", configure: &policy.Policy{AllowList: []string{"Read", "mcp__*"}}, tool: "mcp__docs__search", wantKind: OutcomeApproved},
		{name: "blocked tool", configure: &policy.Policy{Mode: policy.ModeAuto, BlockList: []string{"Bash"}}, tool: "Bash", wantKind: OutcomeDenied},
		{name: "context override", configure: &policy.Policy{Mode: policy.ModeAuto}, override: &policy.Policy{Mode: policy.ModeDeny}, tool: "Write", wantKind: OutcomeDenied},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Recipient = "whatsapp:" + recipient
			config.Policy = *tc.configure
			f := newFixture(t, WithConfig(config))
			ctx := context.Background()
			if tc.override != nil {
				ctx = policy.WithPolicy(ctx, tc.override)
			}
			outcome := f.srv.RequestApproval(ctx, &ToolCall{ToolName: tc.tool})
			assert.Equal(t, tc.wantKind, outcome.Kind)
			assert.Empty(t, outcome.RequestID)
			assert.Empty(t, f.send.sent)
			all, _ := f.store.List(ctx)
			assert.Empty(t, all)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakeDispatcher{})
	assert.Error(t, err)
	_, err = New(memory.New(), nil)
	assert.Error(t, err)
	config := DefaultConfig()
	config.WaitBudget = time.Minute
	_, err = New(memory.New(), &fakeDispatcher{}, WithConfig(config))
	assert.Error(t, err)
	config = DefaultConfig()
	config.Policy.Mode = "sometimes"
	_, err = New(memory.New(), &fakeDispatcher{}, WithConfig(config))
	assert.Error(t, err)
}
