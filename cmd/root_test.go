package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "run", "watch", "status", "batch", "export", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "prospector", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level"} {
		f := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, "root should have --%s", name)
		assert.Equal(t, "", f.DefValue)
	}
	assert.True(t, rootCmd.SilenceUsage)
}

func TestApplyOverrides(t *testing.T) {
	defer func() { logLevel = "" }()

	c := testConfig(t)
	c.Log.Level = "info"

	applyOverrides(c)
	assert.Equal(t, "info", c.Log.Level)

	logLevel = "debug"
	applyOverrides(c)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"serve", "port", "0"},
		{"run", "name", ""},
		{"run", "output", "json"},
		{"watch", "server", ""},
		{"status", "output", "json"},
		{"batch", "file", ""},
		{"batch", "limit", "0"},
		{"export", "out", "prospects.xlsx"},
		{"export", "limit", "10000"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "%s should have --%s", tt.cmd, tt.flag)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestPositionalArgs(t *testing.T) {
	assert.Error(t, runCmd.Args(runCmd, nil))
	assert.NoError(t, runCmd.Args(runCmd, []string{"acmemusic.com"}))
	assert.Error(t, statusCmd.Args(statusCmd, []string{"a.com", "b.com"}))
	assert.NoError(t, watchCmd.Args(watchCmd, []string{"acmemusic.com"}))
}
