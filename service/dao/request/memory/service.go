package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/dao/criteria"
	"github.com/viant/approver/service/dao/store"
)

// Service is an in-process request store. It only serves deployments where
// the MCP tool entry point and the webhook run in the same process.
type Service struct {
	*store.MemoryStore[string, model.Request]
	byFullID map[string]string
	mu       sync.Mutex // guards byFullID
}

// Ensure Service implements dao.RequestService
var _ dao.RequestService = (*Service)(nil)

func requestKey(r *model.Request) string { return r.ID }

// New creates an empty in-memory request store.
func New() *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore[string, model.Request](requestKey,
			store.WithCopier[string, model.Request]((*model.Request).Clone)),
		byFullID: make(map[string]string),
	}
}

// Create inserts the request enforcing uniqueness of both ids.
func (s *Service) Create(ctx context.Context, r *model.Request) error {
	if r == nil {
		return dao.ErrNilEntity
	}
	if r.ID == "" || r.FullRequestID == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byFullID[r.FullRequestID]; ok {
		return dao.ErrDuplicateID
	}
	if err := s.MemoryStore.Create(ctx, r); err != nil {
		return err
	}
	s.byFullID[r.FullRequestID] = r.ID
	return nil
}

// Delete removes the request and its full id index entry.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fullID, shortID := range s.byFullID {
		if shortID == id {
			delete(s.byFullID, fullID)
		}
	}
	return s.MemoryStore.Delete(ctx, id)
}

// FindPending returns the request addressed to recipient.
func (s *Service) FindPending(ctx context.Context, id, recipient string) (*model.Request, error) {
	r, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if model.BareAddress(r.RecipientAddress) != model.BareAddress(recipient) {
		return nil, dao.ErrNotFound
	}
	return r, nil
}

// UpdateStatus resolves a pending, unexpired request under the store lock.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.Status, responseText string, respondedAt time.Time) error {
	if !status.IsTerminal() {
		return dao.ErrInvalidID
	}
	return s.Update(ctx, id, func(r *model.Request) error {
		if r.Status != model.StatusPending {
			return dao.ErrAlreadyResolved
		}
		if r.IsExpired(respondedAt) {
			return dao.ErrExpired
		}
		r.Resolve(status, responseText, respondedAt)
		return nil
	})
}

// List returns the matching requests ordered by creation time.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Request, error) {
	ret, err := s.MemoryStore.List(ctx, func(r *model.Request) bool {
		return criteria.Matches(r, parameters)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.Before(ret[j].CreatedAt) })
	return ret, nil
}
