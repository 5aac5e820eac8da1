package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	expected := []string{
		"version",
		"serve",
		"process",
	}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "subcommand %q should be registered", name)
	}
}

func TestRootCommand_HelpOutput(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "staged pipeline")
	assert.Contains(t, output, "version")
	assert.Contains(t, output, "serve")
	assert.Contains(t, output, "process")
}

func TestVersionVars_HaveDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "none", Commit)
	assert.Equal(t, "unknown", BuildDate)
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "log-level", "log-format", "otel"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "flag %q should exist", name)
	}
}

func TestServeCommand_PortFlag(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "8080", flag.DefValue)
}

func TestProcessCommand_Flags(t *testing.T) {
	require.NotNil(t, processCmd.Flags().Lookup("sender"))
	workers := processCmd.Flags().Lookup("workers")
	require.NotNil(t, workers)
	assert.Equal(t, "4", workers.DefValue)
}
