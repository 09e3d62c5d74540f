package backend

import (
	"context"
	"sync"
	"time"
)

// MockBackend implements Backend for tests. Unset hooks return empty results.
type MockBackend struct {
	OnExecute    func(query string, start, end time.Time) ([]Row, error)
	OnCount      func(stream string, start, end time.Time, where string) (CountResult, error)
	OnSchema     func(stream string) (Schema, error)
	OnOpenStream func(ctx context.Context, stream string) (Feed, error)

	mu      sync.Mutex
	queries []string
	counts  int
	schemas int
	opens   int
}

var _ Backend = (*MockBackend)(nil)

func (m *MockBackend) Execute(_ context.Context, query string, start, end time.Time) ([]Row, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.OnExecute != nil {
		return m.OnExecute(query, start, end)
	}
	return []Row{}, nil
}

func (m *MockBackend) Count(_ context.Context, stream string, start, end time.Time, where string) (CountResult, error) {
	m.mu.Lock()
	m.counts++
	m.mu.Unlock()
	if m.OnCount != nil {
		return m.OnCount(stream, start, end, where)
	}
	return CountResult{}, nil
}

func (m *MockBackend) Schema(_ context.Context, stream string) (Schema, error) {
	m.mu.Lock()
	m.schemas++
	m.mu.Unlock()
	if m.OnSchema != nil {
		return m.OnSchema(stream)
	}
	return Schema{Fields: []Field{{Name: DefaultTimestampColumn, DataType: "Timestamp(Millisecond, None)"}}}, nil
}

func (m *MockBackend) OpenStream(ctx context.Context, stream string) (Feed, error) {
	m.mu.Lock()
	m.opens++
	m.mu.Unlock()
	if m.OnOpenStream != nil {
		return m.OnOpenStream(ctx, stream)
	}
	f := NewChanFeed(ctx, 0)
	return f, nil
}

// Queries returns every query passed to Execute, in call order.
func (m *MockBackend) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// ExecuteCalls is the number of Execute calls.
func (m *MockBackend) ExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// CountCalls is the number of Count calls.
func (m *MockBackend) CountCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}

// SchemaCalls is the number of Schema calls.
func (m *MockBackend) SchemaCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schemas
}

// OpenCalls is the number of OpenStream calls.
func (m *MockBackend) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}
