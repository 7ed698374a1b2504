package system

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTestLogger(t *testing.T) {
	log := NewTestLogger()
	require.NotNil(t, log)
	log.Debugw("debug output is enabled in tests")
}

func TestNewTestZapLogger(t *testing.T) {
	log := NewTestZapLogger()
	require.NotNil(t, log)
	require.NotNil(t, log.Sugar())
}
