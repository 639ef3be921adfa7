package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoir/memoir/internal/config"
)

func TestGetBeforeInitFails(t *testing.T) {
	require.NoError(t, Reset())
	_, err := Get()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitThenGetReturnsSameContext(t *testing.T) {
	t.Cleanup(func() { Reset() })

	c, err := Init(context.Background(), ":memory:", config.Default())
	require.NoError(t, err)

	got, err := Get()
	require.NoError(t, err)
	require.Same(t, c, got)
}

func TestResetClearsContext(t *testing.T) {
	_, err := Init(context.Background(), ":memory:", config.Default())
	require.NoError(t, err)

	require.NoError(t, Reset())
	_, err = Get()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitWiresAdapterAndServices(t *testing.T) {
	t.Cleanup(func() { Reset() })

	c, err := Init(context.Background(), ":memory:", config.Default())
	require.NoError(t, err)
	require.NotNil(t, c.Memories)
	require.NotNil(t, c.Chunks)
	require.NotNil(t, c.Tracker)
	require.NotNil(t, c.Adapter)

	mem, err := c.Memories.Add(context.Background(), "hello", "fact", nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, mem.ID)
}
