package columns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_PinUnpin(t *testing.T) {
	l := New([]string{"p_timestamp", "level", "message", "host"})

	l, err := l.Pin("message")
	require.NoError(t, err)
	assert.Equal(t, []string{"message", "p_timestamp", "level", "host"}, l.Headers)

	l, err = l.Pin("host")
	require.NoError(t, err)
	assert.Equal(t, []string{"message", "host", "p_timestamp", "level"}, l.Headers)

	l, err = l.Unpin("message")
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "message", "p_timestamp", "level"}, l.Headers, "unpinned column lands on the boundary")
	assert.False(t, l.IsPinned("message"))
	assert.True(t, l.IsPinned("host"))

	_, err = l.Pin("nope")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestLayout_Move(t *testing.T) {
	l := New([]string{"a", "b", "c", "d"})
	l, _ = l.Pin("a")
	l, _ = l.Pin("b")

	tests := []struct {
		name     string
		from, to int
		want     []string
		err      error
	}{
		{"inside pinned zone", 0, 1, []string{"b", "a", "c", "d"}, nil},
		{"inside unpinned zone", 3, 2, []string{"a", "b", "d", "c"}, nil},
		{"pinned to unpinned", 1, 2, nil, ErrCrossBoundary},
		{"unpinned to pinned", 3, 0, nil, ErrCrossBoundary},
		{"same index", 2, 2, []string{"a", "b", "c", "d"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Move(tt.from, tt.to)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, []string{"a", "b", "c", "d"}, got.Headers)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Headers)
		})
	}

	_, err := l.Move(0, 9)
	assert.Error(t, err)
}

func TestLayout_ToggleAndVisible(t *testing.T) {
	l := New([]string{"a", "b", "c"})
	l, err := l.Toggle("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, l.Visible())
	l, _ = l.Toggle("b")
	assert.Equal(t, []string{"a", "b", "c"}, l.Visible())
}

func TestLayout_SetHeaders(t *testing.T) {
	l := New([]string{"a", "b", "c"})
	l, _ = l.Pin("c")
	l, _ = l.Toggle("b")

	l = l.SetHeaders([]string{"b", "c", "d"})
	assert.Equal(t, []string{"c", "b", "d"}, l.Headers)
	assert.True(t, l.IsPinned("c"))
	assert.True(t, l.Disabled["b"])
	assert.NotContains(t, l.Pinned, "a")

	for h := range l.Pinned {
		assert.Contains(t, l.Headers, h, "pinned is a subset of headers")
	}
	for h := range l.Disabled {
		assert.Contains(t, l.Headers, h, "disabled is a subset of headers")
	}
}

func TestLayout_IsImmutable(t *testing.T) {
	l := New([]string{"a", "b"})
	pinned, _ := l.Pin("b")
	assert.Equal(t, []string{"a", "b"}, l.Headers)
	assert.False(t, l.IsPinned("b"))
	assert.True(t, pinned.IsPinned("b"))
}
