package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupports(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		op   string
		want bool
	}{
		{"text equals", KindText, Equals, true},
		{"text contains", KindText, Contains, true},
		{"text greater", KindText, Gt, false},
		{"numeric greater", KindNumeric, Gt, true},
		{"numeric contains", KindNumeric, Contains, false},
		{"numeric null", KindNumeric, IsNull, true},
		{"unknown", KindText, "between", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Supports(tt.kind, tt.op))
		})
	}
}

func TestForKind_ReturnsCopy(t *testing.T) {
	ops := ForKind(KindText)
	ops[0] = "mutated"
	assert.Equal(t, Equals, ForKind(KindText)[0])
	assert.Contains(t, ForKind(KindNumeric), Lte)
}

func TestNeedsValue(t *testing.T) {
	assert.False(t, NeedsValue(IsNull))
	assert.False(t, NeedsValue(IsNotNull))
	assert.True(t, NeedsValue(Equals))
	assert.True(t, NeedsValue(Contains))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "is null", Label(IsNull))
	assert.Equal(t, ">=", Label(Gte))
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "numeric", KindNumeric.String())
}
