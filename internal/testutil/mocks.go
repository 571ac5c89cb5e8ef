// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"
	"time"

	"lakegov/internal/domain"
)

// === Audit Repository Mock ===

// MockAuditRepo implements domain.AuditRepository for testing.
type MockAuditRepo struct {
	InsertFn func(ctx context.Context, e *domain.AuditEntry) error
	ListFn   func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error)

	mu      sync.Mutex
	Entries []*domain.AuditEntry // collected entries for assertions
}

// Insert implements the interface method for testing.
func (m *MockAuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Entries = append(m.Entries, e)
	m.mu.Unlock()
	return nil
}

// List implements the interface method for testing.
func (m *MockAuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockAuditRepo.List")
}

// LastEntry returns the last collected audit entry, or nil if none.
func (m *MockAuditRepo) LastEntry() *domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// HasAction returns true if any collected entry has the given action.
func (m *MockAuditRepo) HasAction(action string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

var _ domain.AuditRepository = (*MockAuditRepo)(nil)

// === Table Repository Mock ===

// MockTableRepo implements domain.TableRepository for testing.
type MockTableRepo struct {
	CreateVersionFn   func(ctx context.Context, t *domain.Table, audit *domain.AuditEntry) (*domain.Table, error)
	GetByIDFn         func(ctx context.Context, id string) (*domain.Table, error)
	ListVersionsFn    func(ctx context.Context, logicalName string) ([]domain.Table, error)
	GetPointerFn      func(ctx context.Context, logicalName string) (*domain.TablePointer, error)
	SwapFn            func(ctx context.Context, swap domain.TableSwap, audit *domain.AuditEntry) (*domain.Table, error)
	DeprecateFn       func(ctx context.Context, logicalName string, expectedRevision int64, tableID string, at time.Time, audit *domain.AuditEntry) (*domain.Table, error)
	ListTransitionsFn func(ctx context.Context, tableID string) ([]domain.Transition, error)
}

// CreateVersion implements the interface method for testing.
func (m *MockTableRepo) CreateVersion(ctx context.Context, t *domain.Table, audit *domain.AuditEntry) (*domain.Table, error) {
	if m.CreateVersionFn != nil {
		return m.CreateVersionFn(ctx, t, audit)
	}
	panic("unexpected call to MockTableRepo.CreateVersion")
}

// GetByID implements the interface method for testing.
func (m *MockTableRepo) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	panic("unexpected call to MockTableRepo.GetByID")
}

// ListVersions implements the interface method for testing.
func (m *MockTableRepo) ListVersions(ctx context.Context, logicalName string) ([]domain.Table, error) {
	if m.ListVersionsFn != nil {
		return m.ListVersionsFn(ctx, logicalName)
	}
	panic("unexpected call to MockTableRepo.ListVersions")
}

// GetPointer implements the interface method for testing.
func (m *MockTableRepo) GetPointer(ctx context.Context, logicalName string) (*domain.TablePointer, error) {
	if m.GetPointerFn != nil {
		return m.GetPointerFn(ctx, logicalName)
	}
	panic("unexpected call to MockTableRepo.GetPointer")
}

// Swap implements the interface method for testing.
func (m *MockTableRepo) Swap(ctx context.Context, swap domain.TableSwap, audit *domain.AuditEntry) (*domain.Table, error) {
	if m.SwapFn != nil {
		return m.SwapFn(ctx, swap, audit)
	}
	panic("unexpected call to MockTableRepo.Swap")
}

// Deprecate implements the interface method for testing.
func (m *MockTableRepo) Deprecate(ctx context.Context, logicalName string, expectedRevision int64, tableID string, at time.Time, audit *domain.AuditEntry) (*domain.Table, error) {
	if m.DeprecateFn != nil {
		return m.DeprecateFn(ctx, logicalName, expectedRevision, tableID, at, audit)
	}
	panic("unexpected call to MockTableRepo.Deprecate")
}

// ListTransitions implements the interface method for testing.
func (m *MockTableRepo) ListTransitions(ctx context.Context, tableID string) ([]domain.Transition, error) {
	if m.ListTransitionsFn != nil {
		return m.ListTransitionsFn(ctx, tableID)
	}
	panic("unexpected call to MockTableRepo.ListTransitions")
}

var _ domain.TableRepository = (*MockTableRepo)(nil)

// === Join Sampler Mock ===

// MockJoinSampler implements domain.JoinSampler for testing.
type MockJoinSampler struct {
	SampleFn func(ctx context.Context, left, right *domain.Table, cond domain.JoinCondition, sampleSize int) (*domain.JoinSample, error)
}

// Sample implements the interface method for testing.
func (m *MockJoinSampler) Sample(ctx context.Context, left, right *domain.Table, cond domain.JoinCondition, sampleSize int) (*domain.JoinSample, error) {
	if m.SampleFn != nil {
		return m.SampleFn(ctx, left, right, cond, sampleSize)
	}
	panic("unexpected call to MockJoinSampler.Sample")
}

// StaticSampler returns a MockJoinSampler that always observes s.
func StaticSampler(s domain.JoinSample) *MockJoinSampler {
	return &MockJoinSampler{SampleFn: func(context.Context, *domain.Table, *domain.Table, domain.JoinCondition, int) (*domain.JoinSample, error) {
		out := s
		return &out, nil
	}}
}

var _ domain.JoinSampler = (*MockJoinSampler)(nil)

// === Record Sources ===

// SliceSource is a domain.RecordSource over in-memory records.
type SliceSource struct {
	Records []domain.Record
	// Reads counts the batches handed to the callback.
	Reads int
}

// Read implements domain.RecordSource.
func (s *SliceSource) Read(ctx context.Context, batchSize int, fn func([]domain.Record) error) error {
	for start := 0; start < len(s.Records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(s.Records))
		s.Reads++
		if err := fn(s.Records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

var _ domain.RecordSource = (*SliceSource)(nil)

// MockSourceOpener implements domain.RecordSourceOpener for testing.
type MockSourceOpener struct {
	OpenFn func(ctx context.Context, uri string) (domain.RecordSource, error)
	URIs   []string
}

// Open implements the interface method for testing.
func (m *MockSourceOpener) Open(ctx context.Context, uri string) (domain.RecordSource, error) {
	m.URIs = append(m.URIs, uri)
	if m.OpenFn != nil {
		return m.OpenFn(ctx, uri)
	}
	panic("unexpected call to MockSourceOpener.Open")
}

var _ domain.RecordSourceOpener = (*MockSourceOpener)(nil)
