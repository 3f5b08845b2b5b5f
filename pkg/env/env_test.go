package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetOrDefault(t *testing.T) {
	t.Setenv("FP_TEST_STRING", "custom")
	assert.Equal(t, "custom", GetOrDefault("FP_TEST_STRING", "default"))
	assert.Equal(t, "default", GetOrDefault("FP_TEST_MISSING", "default"))
}

func TestGetBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"y", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"maybe", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("FP_TEST_BOOL", tt.value)
			assert.Equal(t, tt.expected, GetBool("FP_TEST_BOOL"))
		})
	}
}

func TestGetBoolOrDefault(t *testing.T) {
	assert.True(t, GetBoolOrDefault("FP_TEST_BOOL_UNSET", true))
	t.Setenv("FP_TEST_BOOL_SET", "no")
	assert.False(t, GetBoolOrDefault("FP_TEST_BOOL_SET", true))
}

func TestGetIntOrDefault(t *testing.T) {
	t.Setenv("FP_TEST_INT", "42")
	assert.Equal(t, 42, GetIntOrDefault("FP_TEST_INT", 7))

	t.Setenv("FP_TEST_INT", "forty-two")
	assert.Equal(t, 7, GetIntOrDefault("FP_TEST_INT", 7))

	assert.Equal(t, 7, GetIntOrDefault("FP_TEST_INT_UNSET", 7))
}

func TestGetDurationOrDefault(t *testing.T) {
	t.Setenv("FP_TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, GetDurationOrDefault("FP_TEST_DURATION", time.Minute))

	t.Setenv("FP_TEST_DURATION", "soon")
	assert.Equal(t, time.Minute, GetDurationOrDefault("FP_TEST_DURATION", time.Minute))
}
