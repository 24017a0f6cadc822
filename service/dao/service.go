package dao

import (
	"context"
	"time"

	"github.com/viant/approver/model"
)

// Service is the generic keyed persistence contract.
type Service[K comparable, T any] interface {
	// Create inserts t, failing with ErrDuplicateID when the key exists.
	Create(ctx context.Context, t *T) error

	// Load returns the entity or ErrNotFound.
	Load(ctx context.Context, id K) (*T, error)

	// Delete removes the entity; deleting a missing key is not an error.
	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// RequestService persists approval requests.
type RequestService interface {
	Service[string, model.Request]

	// FindPending returns the request with id addressed to recipient, whatever
	// its status; ErrNotFound when the id is unknown or belongs to another
	// recipient.
	FindPending(ctx context.Context, id, recipient string) (*model.Request, error)

	// UpdateStatus atomically resolves a pending, unexpired request.
	// respondedAt is also the instant the expiry is checked against.
	// Returns ErrNotFound, ErrAlreadyResolved or ErrExpired otherwise.
	UpdateStatus(ctx context.Context, id string, status model.Status, responseText string, respondedAt time.Time) error
}
