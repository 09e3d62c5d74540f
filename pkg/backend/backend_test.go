package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		dataType string
		want     bool
	}{
		{"Int64", true},
		{"UInt8", true},
		{"Float64", true},
		{"bigint", true},
		{"double precision", true},
		{"numeric", true},
		{"integer", true},
		{"int4", true},
		{"Decimal128(38, 10)", true},
		{"interval", false},
		{"inet", false},
		{"Utf8", false},
		{"text", false},
		{"Boolean", false},
		{"Timestamp(Millisecond, None)", false},
	}
	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNumeric(tt.dataType))
		})
	}
	assert.True(t, IsTimestamp("Timestamp(Millisecond, None)"))
	assert.True(t, IsTimestamp("timestamp with time zone"))
}

func TestSchema_Lookup(t *testing.T) {
	s := Schema{Fields: []Field{{Name: "status", DataType: "Int64"}, {Name: "message", DataType: "Utf8"}}}
	f, ok := s.Lookup("status")
	assert.True(t, ok)
	assert.Equal(t, "Int64", f.DataType)
	_, ok = s.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"status", "message"}, s.Names())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	errs := []error{
		&SchemaError{Stream: "app-logs", Err: cause},
		&QueryError{Query: "SELECT 1", Err: cause},
		&CountError{Stream: "app-logs", Gap: 5 * time.Minute, Err: cause},
		&StreamError{Stream: "app-logs", Err: cause},
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection refused")
	}

	var countErr *CountError
	assert.True(t, errors.As(errs[2], &countErr))
	assert.Equal(t, 5*time.Minute, countErr.Gap)
}

func TestChanFeed(t *testing.T) {
	t.Run("rows then close", func(t *testing.T) {
		f := NewChanFeed(context.Background(), 2)
		assert.True(t, f.Send(Row{"n": 1}))
		assert.True(t, f.Send(Row{"n": 2}))
		f.Close()

		var got []Row
		for r := range f.Rows() {
			got = append(got, r)
		}
		assert.Len(t, got, 2)
		_, open := <-f.Err()
		assert.False(t, open)
	})

	t.Run("failure is delivered once", func(t *testing.T) {
		f := NewChanFeed(context.Background(), 0)
		f.Fail(errors.New("reset by peer"))
		f.Fail(errors.New("second"))
		err, ok := <-f.Err()
		require.True(t, ok)
		assert.EqualError(t, err, "reset by peer")
	})

	t.Run("cancel unblocks send", func(t *testing.T) {
		f := NewChanFeed(context.Background(), 0)
		done := make(chan bool)
		go func() { done <- f.Send(Row{}) }()
		f.Cancel()
		assert.False(t, <-done)
		f.Fail(errors.New("after cancel"))
		_, ok := <-f.Err()
		assert.False(t, ok, "a cancelled feed ends silently")
	})
}

func TestMockBackend_Counts(t *testing.T) {
	m := &MockBackend{}
	ctx := context.Background()
	_, _ = m.Execute(ctx, "SELECT 1", time.Time{}, time.Time{})
	_, _ = m.Count(ctx, "s", time.Time{}, time.Time{}, "")
	_, _ = m.Schema(ctx, "s")
	feed, err := m.OpenStream(ctx, "s")
	require.NoError(t, err)
	feed.Cancel()

	assert.Equal(t, []string{"SELECT 1"}, m.Queries())
	assert.Equal(t, 1, m.ExecuteCalls())
	assert.Equal(t, 1, m.CountCalls())
	assert.Equal(t, 1, m.SchemaCalls())
	assert.Equal(t, 1, m.OpenCalls())
}
