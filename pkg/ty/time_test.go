package ty

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimeValue(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantChanged bool
		wantPrefix  string // Expected prefix for date-based results
	}{
		{
			name:        "empty string",
			input:       "",
			wantChanged: false,
		},
		{
			name:        "duration 1h",
			input:       "1h",
			wantChanged: false,
		},
		{
			name:        "duration 30m",
			input:       "30m",
			wantChanged: false,
		},
		{
			name:        "duration 1h30m",
			input:       "1h30m",
			wantChanged: false,
		},
		{
			name:        "RFC3339",
			input:       "2024-01-15T10:30:00Z",
			wantChanged: false,
		},
		{
			name:        "RFC3339 with timezone",
			input:       "2024-01-15T10:30:00-05:00",
			wantChanged: false,
		},
		{
			name:        "time only HH:MM:SS",
			input:       "10:30:45",
			wantChanged: true,
			wantPrefix:  time.Now().Format("2006-01-02"),
		},
		{
			name:        "time only HH:MM",
			input:       "10:30",
			wantChanged: true,
			wantPrefix:  time.Now().Format("2006-01-02"),
		},
		{
			name:        "date-time without timezone (space)",
			input:       "2024-01-15 10:30:00",
			wantChanged: true,
			wantPrefix:  "2024-01-15",
		},
		{
			name:        "date-time without timezone (T)",
			input:       "2024-01-15T10:30:00",
			wantChanged: true,
			wantPrefix:  "2024-01-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := NormalizeTimeValue(tt.input)

			if changed != tt.wantChanged {
				t.Errorf("NormalizeTimeValue(%q) changed = %v, want %v", tt.input, changed, tt.wantChanged)
			}

			if !tt.wantChanged {
				if got != tt.input {
					t.Errorf("NormalizeTimeValue(%q) = %q, want %q (unchanged)", tt.input, got, tt.input)
				}
			} else {
				if tt.wantPrefix != "" && !strings.HasPrefix(got, tt.wantPrefix) {
					t.Errorf("NormalizeTimeValue(%q) = %q, want prefix %q", tt.input, got, tt.wantPrefix)
				}
				// Verify the result is valid RFC3339
				if _, err := time.Parse(time.RFC3339, got); err != nil {
					t.Errorf("NormalizeTimeValue(%q) = %q, not valid RFC3339: %v", tt.input, got, err)
				}
			}
		})
	}
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("default is last 15 minutes", func(t *testing.T) {
		start, end, err := ResolveRange("", "", "", now)
		require.NoError(t, err)
		assert.Equal(t, now, end)
		assert.Equal(t, now.Add(-15*time.Minute), start)
	})

	t.Run("last wins over from", func(t *testing.T) {
		start, _, err := ResolveRange("2024-01-01T00:00:00Z", "", "1h", now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(-time.Hour), start)
	})

	t.Run("absolute bounds", func(t *testing.T) {
		start, end, err := ResolveRange("2024-01-15T10:00:00Z", "2024-01-15T11:00:00Z", "", now)
		require.NoError(t, err)
		assert.Equal(t, 10, start.Hour())
		assert.Equal(t, 11, end.Hour())
	})

	t.Run("relative from", func(t *testing.T) {
		start, _, err := ResolveRange("30m", "", "", now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(-30*time.Minute), start)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, _, err := ResolveRange("2024-01-15T11:00:00Z", "2024-01-15T10:00:00Z", "", now)
		assert.ErrorIs(t, err, ErrEmptyRange)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, _, err := ResolveRange("", "", "soon", now)
		assert.Error(t, err)
	})
}
