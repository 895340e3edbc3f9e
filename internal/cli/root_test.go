package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	require.True(t, strings.HasPrefix(out.String(), "dealwatch "))
	require.Nil(t, appHandle)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"deals"}, {"history"}, {"alerts", "add"}, {"alerts", "list"}, {"alerts", "deactivate"},
		{"watch"}, {"snapshots"}, {"serve"}, {"simulate-alert"}, {"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}
