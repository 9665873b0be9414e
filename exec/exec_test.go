package exec_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/araki/exec"
)

func TestStream(t *testing.T) {
	t.Parallel()

	var out, errOut strings.Builder

	err := exec.Stream(
		context.Background(), "", &out, &errOut, "echo  pixi   install",
	)

	require.NoError(t, err)
	assert.Equal(t, "pixi install\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestStream_with_dir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var out strings.Builder

	err := exec.Stream(context.Background(), dir, &out, nil, "pwd")

	require.NoError(t, err)
	assert.Contains(t, out.String(), filepath.Base(dir))
}

func TestStream_failure(t *testing.T) {
	t.Parallel()

	err := exec.Stream(context.Background(), "", nil, nil, "false")

	assert.ErrorContains(t, err, "running command: false")
}

func TestStream_cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Stream(ctx, "", nil, nil, "sleep 5")

	assert.Error(t, err)
}

func TestStream_empty(t *testing.T) {
	t.Parallel()

	err := exec.Stream(context.Background(), "", nil, nil, "   ")

	assert.ErrorIs(t, err, exec.ErrEmptyCommand)
}
