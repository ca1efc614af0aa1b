package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGuid(t *testing.T) {
	a := NewGuid(PublishPrefix)
	b := NewGuid(PublishPrefix)
	require.True(t, strings.HasPrefix(a, PublishPrefix))
	require.NotEqual(t, a, b)
	require.Greater(t, len(a), len(PublishPrefix)+16)
}
