package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type writerConfig struct {
	bufLimit int
	compound bool
}

func withBufLimit(n int) Option[*writerConfig] {
	return New(func(c *writerConfig) error {
		if n <= 0 {
			return errors.New("buffer limit must be positive")
		}
		c.bufLimit = n

		return nil
	})
}

func withCompound(on bool) Option[*writerConfig] {
	return NoError(func(c *writerConfig) {
		c.compound = on
	})
}

func TestApply(t *testing.T) {
	t.Run("applies options in order", func(t *testing.T) {
		cfg := &writerConfig{}
		err := Apply(cfg, withBufLimit(4096), withCompound(true))
		require.NoError(t, err)
		require.Equal(t, 4096, cfg.bufLimit)
		require.True(t, cfg.compound)
	})

	t.Run("stops at the first failing option", func(t *testing.T) {
		cfg := &writerConfig{}
		err := Apply(cfg, withBufLimit(1024), withBufLimit(-1), withCompound(true))
		require.Error(t, err)
		require.Equal(t, 1024, cfg.bufLimit)
		require.False(t, cfg.compound)
	})

	t.Run("no options is a no-op", func(t *testing.T) {
		cfg := &writerConfig{}
		require.NoError(t, Apply(cfg))
		require.Equal(t, writerConfig{}, *cfg)
	})
}

func TestNoError(t *testing.T) {
	cfg := &writerConfig{}
	require.NoError(t, withCompound(true).apply(cfg))
	require.True(t, cfg.compound)
}
