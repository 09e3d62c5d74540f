package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShallowEqual(t *testing.T) {
	rows := []string{"a", "b"}
	meta := map[string]string{"k": "v"}
	ptr := &viewState{}

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"same scalar", 1, 1, true},
		{"different scalar", 1, 2, false},
		{"nil interfaces", nil, nil, true},
		{"nil vs value", nil, 1, false},
		{"different types", 1, "1", false},
		{"same slice", rows, rows, true},
		{"equal content new slice", rows, []string{"a", "b"}, true},
		{"different content", rows, []string{"a", "c"}, false},
		{"same map", meta, meta, true},
		{"equal map content", meta, map[string]string{"k": "v"}, true},
		{"map content differs", meta, map[string]string{"k": "w"}, false},
		{"struct same fields", viewState{Stream: "x", Filters: rows}, viewState{Stream: "x", Filters: rows}, true},
		{"struct new slice field", viewState{Filters: rows}, viewState{Filters: []string{"a", "b"}}, false},
		{"same pointer", ptr, ptr, true},
		{"different pointer", ptr, &viewState{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShallowEqual(tt.a, tt.b))
		})
	}
}

func TestShallowEqual_Typed(t *testing.T) {
	assert.True(t, ShallowEqual(viewState{Page: 1}, viewState{Page: 1}))
	assert.False(t, ShallowEqual(viewState{Page: 1}, viewState{Page: 2}))
	assert.True(t, ShallowEqual([]int(nil), []int(nil)))
	assert.False(t, ShallowEqual([]int(nil), []int{}))
}
