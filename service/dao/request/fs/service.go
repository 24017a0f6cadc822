package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/dao/criteria"
)

// Service stores one JSON document per request under basePath. Any afs
// backed URL works; updates are serialised by the service mutex so a single
// process must own the location.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

// Ensure Service implements dao.RequestService
var _ dao.RequestService = (*Service)(nil)

// Create persists a new request.
func (s *Service) Create(ctx context.Context, r *model.Request) error {
	if r == nil {
		return dao.ErrNilEntity
	}
	if !validID(r.ID) || r.FullRequestID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.requestPath(r.ID)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if request exists: %w", err)
	}
	if exists {
		return dao.ErrDuplicateID
	}
	existing, err := s.list(ctx)
	if err != nil {
		return err
	}
	for _, candidate := range existing {
		if candidate.FullRequestID == r.FullRequestID {
			return dao.ErrDuplicateID
		}
	}
	return s.save(ctx, r)
}

// Load retrieves a request by its short id.
func (s *Service) Load(ctx context.Context, id string) (*model.Request, error) {
	if !validID(id) {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, id)
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

// UpdateStatus resolves a pending, unexpired request.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.Status, responseText string, respondedAt time.Time) error {
	if !status.IsTerminal() {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != model.StatusPending {
		return dao.ErrAlreadyResolved
	}
	if r.IsExpired(respondedAt) {
		return dao.ErrExpired
	}
	r.Resolve(status, responseText, respondedAt)
	return s.save(ctx, r)
}

// Delete removes a request; a missing request is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.requestPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if request exists: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete request file: %w", err)
	}
	return nil
}

// List returns the matching requests ordered by creation time.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	var ret []*model.Request
	for _, r := range all {
		if criteria.Matches(r, parameters) {
			ret = append(ret, r)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.Before(ret[j].CreatedAt) })
	return ret, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.Request, error) {
	if !validID(id) {
		return nil, dao.ErrInvalidID
	}
	filePath := s.requestPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if request exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	var r model.Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %s: %w", id, err)
	}
	return &r, nil
}

func (s *Service) save(ctx context.Context, r *model.Request) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	filePath := s.requestPath(r.ID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save request to file %s: %w", filePath, err)
	}
	return nil
}

func (s *Service) list(ctx context.Context) ([]*model.Request, error) {
	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list request files: %w", err)
	}
	var ret []*model.Request
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			return nil, fmt.Errorf("failed to read request file %s: %w", object.URL(), err)
		}
		var r model.Request
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request from %s: %w", object.URL(), err)
		}
		ret = append(ret, &r)
	}
	return ret, nil
}

// validID rejects ids that would escape basePath once joined into a file name.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func (s *Service) requestPath(id string) string {
	return url.Join(s.basePath, id+".json")
}

// New creates a filesystem request store rooted at basePath.
func New(ctx context.Context, basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	basePath = url.Normalize(basePath, file.Scheme)
	fs := afs.New()
	exists, err := fs.Exists(ctx, basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check base directory: %w", err)
	}
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &Service{basePath: basePath, fs: fs}, nil
}

