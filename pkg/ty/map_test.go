package ty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMI_Getters(t *testing.T) {
	mi := MI{
		"url":      "http://localhost",
		"port":     8000.0,
		"portStr":  "9000",
		"insecure": "yes",
		"gzip":     true,
		"headers":  map[string]interface{}{"X-P-Stream": "app", "X-Retry": 2},
	}

	assert.Equal(t, "http://localhost", mi.GetString("url"))
	assert.Equal(t, "8000", mi.GetString("port"))
	assert.Equal(t, "", mi.GetString("missing"))
	assert.Equal(t, 8000, mi.GetInt("port", 0))
	assert.Equal(t, 9000, mi.GetInt("portStr", 0))
	assert.Equal(t, 5, mi.GetInt("missing", 5))
	assert.True(t, mi.GetBool("insecure"))
	assert.True(t, mi.GetBool("gzip"))
	assert.False(t, mi.GetBool("missing"))
	assert.Equal(t, MS{"X-P-Stream": "app", "X-Retry": "2"}, mi.GetMS("headers"))
	assert.Equal(t, "fallback", mi.GetOr("missing", "fallback"))
}

func TestMergeM(t *testing.T) {
	merged := MergeM[string](nil, map[string]string{"a": "1"})
	assert.Equal(t, map[string]string{"a": "1"}, merged)

	merged = MergeM(merged, map[string]string{"a": "2", "b": "3"})
	assert.Equal(t, map[string]string{"a": "2", "b": "3"}, merged)
}
