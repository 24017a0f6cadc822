// Package requesttest holds the behaviour every dao.RequestService
// implementation must satisfy.
package requesttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dao"
)

// Recipient is the address used by the fixtures.
const Recipient = "+15550001111"

// NewRequest returns a pending fixture created at createdAt with a 5 minute window.
func NewRequest(id string, createdAt time.Time) *model.Request {
	return &model.Request{
		ID:               id,
		FullRequestID:    id + "-0000-4000-8000-000000000000",
		Description:      "*Tool:* Write",
		Requester:        "Claude",
		RecipientAddress: Recipient,
		Status:           model.StatusPending,
		CreatedAt:        createdAt,
		ExpiresAt:        createdAt.Add(5 * time.Minute),
	}
}

// Run executes the conformance suite; newService must return an empty store.
func Run(t *testing.T, newService func(t *testing.T) dao.RequestService) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		srv := newService(t)
		in := NewRequest("abc12345", t0)
		require.NoError(t, srv.Create(ctx, in))

		got, err := srv.Load(ctx, "abc12345")
		require.NoError(t, err)
		assert.Equal(t, in.FullRequestID, got.FullRequestID)
		assert.Equal(t, in.Description, got.Description)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, in.ExpiresAt.Equal(got.ExpiresAt))
		assert.Nil(t, got.RespondedAt)
		assert.Nil(t, got.ResponseText)

		_, err = srv.Load(ctx, "missing1")
		assert.ErrorIs(t, err, dao.ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		srv := newService(t)
		require.NoError(t, srv.Create(ctx, NewRequest("abc12345", t0)))
		err := srv.Create(ctx, NewRequest("abc12345", t0))
		assert.ErrorIs(t, err, dao.ErrDuplicateID)

		sameFull := NewRequest("ffff0000", t0)
		sameFull.FullRequestID = "abc12345-0000-4000-8000-000000000000"
		assert.ErrorIs(t, srv.Create(ctx, sameFull), dao.ErrDuplicateID)
	})

	t.Run("find pending isolates recipients", func(t *testing.T) {
		srv := newService(t)
		require.NoError(t, srv.Create(ctx, NewRequest("abc12345", t0)))

		got, err := srv.FindPending(ctx, "abc12345", Recipient)
		require.NoError(t, err)
		assert.Equal(t, "abc12345", got.ID)

		_, err = srv.FindPending(ctx, "abc12345", "+15559999999")
		assert.ErrorIs(t, err, dao.ErrNotFound)
		_, err = srv.FindPending(ctx, "nope0000", Recipient)
		assert.ErrorIs(t, err, dao.ErrNotFound)
	})

	t.Run("update status", func(t *testing.T) {
		testCases := []struct {
			name      string
			prepare   func(srv dao.RequestService)
			at        time.Time
			expectErr error
			expect    model.Status
		}{
			{name: "approve pending", at: t0.Add(10 * time.Second), expect: model.StatusApproved},
			{name: "expired", at: t0.Add(5*time.Minute + 30*time.Second), expectErr: dao.ErrExpired, expect: model.StatusPending},
			{
				name: "already resolved",
				prepare: func(srv dao.RequestService) {
					require.NoError(t, srv.UpdateStatus(ctx, "abc12345", model.StatusDenied, "DENY abc12345", t0.Add(time.Second)))
				},
				at:        t0.Add(20 * time.Second),
				expectErr: dao.ErrAlreadyResolved,
				expect:    model.StatusDenied,
			},
			{
				name: "resolved beats expired",
				prepare: func(srv dao.RequestService) {
					require.NoError(t, srv.UpdateStatus(ctx, "abc12345", model.StatusDenied, "DENY abc12345", t0.Add(time.Second)))
				},
				at:        t0.Add(time.Hour),
				expectErr: dao.ErrAlreadyResolved,
				expect:    model.StatusDenied,
			},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				srv := newService(t)
				require.NoError(t, srv.Create(ctx, NewRequest("abc12345", t0)))
				if tc.prepare != nil {
					tc.prepare(srv)
				}
				before, _ := srv.Load(ctx, "abc12345")

				err := srv.UpdateStatus(ctx, "abc12345", model.StatusApproved, "APPROVE abc12345", tc.at)
				got, lErr := srv.Load(ctx, "abc12345")
				require.NoError(t, lErr)
				assert.Equal(t, tc.expect, got.Status)
				if tc.expectErr != nil {
					assert.ErrorIs(t, err, tc.expectErr)
					assert.Equal(t, before.ResponseText, got.ResponseText)
					if before.RespondedAt != nil {
						assert.True(t, before.RespondedAt.Equal(*got.RespondedAt))
					} else {
						assert.Nil(t, got.RespondedAt)
					}
					return
				}
				require.NoError(t, err)
				require.NotNil(t, got.RespondedAt)
				require.NotNil(t, got.ResponseText)
				assert.True(t, tc.at.Equal(*got.RespondedAt))
				assert.Equal(t, "APPROVE abc12345", *got.ResponseText)
			})
		}

		srv := newService(t)
		err := srv.UpdateStatus(ctx, "missing1", model.StatusApproved, "x", t0)
		assert.ErrorIs(t, err, dao.ErrNotFound)
	})

	t.Run("concurrent updates resolve once", func(t *testing.T) {
		srv := newService(t)
		require.NoError(t, srv.Create(ctx, NewRequest("abc12345", t0)))

		const workers = 8
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				status := model.StatusApproved
				if i%2 == 1 {
					status = model.StatusDenied
				}
				errs[i] = srv.UpdateStatus(ctx, "abc12345", status, fmt.Sprintf("reply-%d", i), t0.Add(time.Second))
			}(i)
		}
		wg.Wait()
		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, dao.ErrAlreadyResolved):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("delete", func(t *testing.T) {
		srv := newService(t)
		require.NoError(t, srv.Create(ctx, NewRequest("abc12345", t0)))
		require.NoError(t, srv.Delete(ctx, "abc12345"))
		_, err := srv.Load(ctx, "abc12345")
		assert.ErrorIs(t, err, dao.ErrNotFound)
		assert.NoError(t, srv.Delete(ctx, "abc12345"))
		// the full id is free again once the row is gone
		assert.NoError(t, srv.Create(ctx, NewRequest("abc12345", t0)))
	})

	t.Run("list", func(t *testing.T) {
		srv := newService(t)
		require.NoError(t, srv.Create(ctx, NewRequest("aaaa0001", t0)))
		require.NoError(t, srv.Create(ctx, NewRequest("aaaa0002", t0.Add(time.Second))))
		other := NewRequest("aaaa0003", t0.Add(2*time.Second))
		other.RecipientAddress = "+15559999999"
		require.NoError(t, srv.Create(ctx, other))
		require.NoError(t, srv.UpdateStatus(ctx, "aaaa0002", model.StatusApproved, "ok", t0.Add(3*time.Second)))

		all, err := srv.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "aaaa0001", all[0].ID)
		assert.Equal(t, "aaaa0003", all[2].ID)

		pending, err := srv.List(ctx, dao.NewParameter(dao.ParamStatus, string(model.StatusPending)))
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		mine, err := srv.List(ctx,
			dao.NewParameter(dao.ParamStatus, string(model.StatusPending)),
			dao.NewParameter(dao.ParamRecipient, Recipient))
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "aaaa0001", mine[0].ID)
	})
}
