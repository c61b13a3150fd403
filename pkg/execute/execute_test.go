package execute

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunCapture(t *testing.T) {
	out, err := Run(context.Background(), Options{
		Command: "echo",
		Args:    []string{"hello"},
		Capture: true,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(out))
}

func TestRunFailureRetries(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), Options{
		Command: "false",
		Retries: 2,
		Delay:   10 * time.Millisecond,
		Logger:  zaptest.NewLogger(t),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRunTimeout(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Command: "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
		Logger:  zaptest.NewLogger(t),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunDryRun(t *testing.T) {
	out, err := Run(context.Background(), Options{Command: "definitely-not-a-binary", DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, out)
}
