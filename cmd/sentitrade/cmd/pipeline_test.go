package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineFlags(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"once", "every", "stream"} {
		f := pipelineCmd.Flags().Lookup(name)
		require.NotNil(t, f, "flag --%s not registered", name)
	}

	// The push feed is opt-in; the default pipeline is pull-only.
	assert.Equal(t, "false", pipelineCmd.Flags().Lookup("stream").DefValue)
	assert.Equal(t, "false", pipelineCmd.Flags().Lookup("once").DefValue)
}

func TestPipelineRegisteredOnRoot(t *testing.T) {
	t.Parallel()

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"pipeline", "run", "query", "serve"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}
