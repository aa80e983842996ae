package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/policy"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/google/uuid"
)

// PurchaseRequestRepository is an in-memory repository for testing.
// Transactions are serialized and buffer their writes until commit.
type PurchaseRequestRepository struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	requests map[uuid.UUID]*models.PurchaseRequest

	// Failure injection, checked inside transactions
	FailSave   error
	FailAppend error
	// Commits counts successful transactions
	Commits int
}

// NewPurchaseRequestRepository creates an empty repository
func NewPurchaseRequestRepository() *PurchaseRequestRepository {
	return &PurchaseRequestRepository{
		requests: make(map[uuid.UUID]*models.PurchaseRequest),
	}
}

// CreateRequest stores a copy of r
func (m *PurchaseRequestRepository) CreateRequest(ctx context.Context, r *models.PurchaseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.requests[r.ID]; exists {
		return fmt.Errorf("purchase request %s: %w", r.ID, repository.ErrDuplicate)
	}
	m.requests[r.ID] = r.Clone()
	return nil
}

// GetRequest returns a copy of the stored request
func (m *PurchaseRequestRepository) GetRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("purchase request %s: %w", id, repository.ErrNotFound)
	}
	return r.Clone(), nil
}

// ListRequests applies the same visibility rules as the SQL implementation
func (m *PurchaseRequestRepository) ListRequests(ctx context.Context, filter models.PurchaseRequestFilter) ([]*models.PurchaseRequest, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.PurchaseRequest
	for _, r := range m.requests {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if !policy.CanView(filter.Viewer, r) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := min(filter.Offset, len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}

	out := make([]*models.PurchaseRequest, 0, end-start)
	for _, r := range matched[start:end] {
		out = append(out, r.Clone())
	}
	return out, total, nil
}

// DeleteRequest removes a request still at version
func (m *PurchaseRequestRepository) DeleteRequest(ctx context.Context, id uuid.UUID, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("purchase request %s: %w", id, repository.ErrNotFound)
	}
	if r.Version != version {
		return fmt.Errorf("purchase request %s: %w", id, repository.ErrVersionConflict)
	}
	delete(m.requests, id)
	return nil
}

// WithinTx runs fn against a buffered store and applies its writes only
// when fn succeeds
func (m *PurchaseRequestRepository) WithinTx(ctx context.Context, fn func(store repository.RequestStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &txStore{repo: m, saved: make(map[uuid.UUID]*models.PurchaseRequest)}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range tx.saved {
		m.requests[id] = r
	}
	for _, a := range tx.approvals {
		if r, ok := m.requests[a.RequestID]; ok {
			r.Approvals = append(r.Approvals, a)
		}
	}
	m.Commits++
	return nil
}

// Put overwrites a stored request, bypassing version checks
func (m *PurchaseRequestRepository) Put(r *models.PurchaseRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = r.Clone()
}

type txStore struct {
	repo      *PurchaseRequestRepository
	saved     map[uuid.UUID]*models.PurchaseRequest
	approvals []models.Approval
}

func (s *txStore) current(id uuid.UUID) (*models.PurchaseRequest, bool) {
	if r, ok := s.saved[id]; ok {
		return r, true
	}
	s.repo.mu.RLock()
	defer s.repo.mu.RUnlock()
	r, ok := s.repo.requests[id]
	return r, ok
}

func (s *txStore) LoadRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	r, ok := s.current(id)
	if !ok {
		return nil, fmt.Errorf("purchase request %s: %w", id, repository.ErrNotFound)
	}
	c := r.Clone()
	for _, a := range s.approvals {
		if a.RequestID == id {
			c.Approvals = append(c.Approvals, a)
		}
	}
	return c, nil
}

func (s *txStore) SaveRequest(ctx context.Context, r *models.PurchaseRequest) error {
	if s.repo.FailSave != nil {
		return s.repo.FailSave
	}
	stored, ok := s.current(r.ID)
	if !ok {
		return fmt.Errorf("purchase request %s: %w", r.ID, repository.ErrNotFound)
	}
	if stored.Version != r.Version {
		return fmt.Errorf("purchase request %s: %w", r.ID, repository.ErrVersionConflict)
	}

	r.Version++
	r.UpdatedAt = time.Now().UTC()

	c := r.Clone()
	// approvals live in their own table
	c.Approvals = append([]models.Approval(nil), stored.Approvals...)
	s.saved[r.ID] = c
	return nil
}

func (s *txStore) ReplaceItems(ctx context.Context, requestID uuid.UUID, items []models.RequestItem) error {
	r, ok := s.current(requestID)
	if !ok {
		return fmt.Errorf("purchase request %s: %w", requestID, repository.ErrNotFound)
	}
	c := r.Clone()
	c.Items = append([]models.RequestItem(nil), items...)
	s.saved[requestID] = c
	return nil
}

func (s *txStore) AppendApproval(ctx context.Context, a *models.Approval) error {
	if s.repo.FailAppend != nil {
		return s.repo.FailAppend
	}
	s.approvals = append(s.approvals, *a)
	return nil
}

func (s *txStore) PONumberExists(ctx context.Context, number string) (bool, error) {
	for _, r := range s.saved {
		if r.PurchaseOrderData != nil && r.PurchaseOrderData.PONumber == number {
			return true, nil
		}
	}
	s.repo.mu.RLock()
	defer s.repo.mu.RUnlock()
	for _, r := range s.repo.requests {
		if r.PurchaseOrderData != nil && r.PurchaseOrderData.PONumber == number {
			return true, nil
		}
	}
	return false, nil
}
