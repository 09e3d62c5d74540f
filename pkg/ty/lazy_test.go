package ty

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLazy_MemoizesSuccessOnly(t *testing.T) {
	calls := 0
	fail := true
	lazy := GetLazy(func() (*string, error) {
		calls++
		if fail {
			return nil, errors.New("boom")
		}
		s := "ready"
		return &s, nil
	})

	_, err := lazy()
	assert.Error(t, err)

	fail = false
	v, err := lazy()
	assert.NoError(t, err)
	assert.Equal(t, "ready", *v)

	_, _ = lazy()
	assert.Equal(t, 2, calls)
}

func TestLazyMap_Get(t *testing.T) {
	lm := LazyMap[int]{
		"one": GetLazy(func() (*int, error) { v := 1; return &v, nil }),
	}

	v, err := lm.Get("one")
	assert.NoError(t, err)
	assert.Equal(t, 1, *v)

	_, err = lm.Get("two")
	assert.ErrorIs(t, err, ErrLazyNotFound)
}
