package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "migrate", "resync", "export", "template"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "loomtrack", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	for _, name := range []string{"log-level", "log-format"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Empty(t, flag.DefValue, name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestTenantCommands_RequireTenant(t *testing.T) {
	for _, c := range []*cobra.Command{resyncCmd, exportCmd, templateImportCmd} {
		flag := c.Flags().Lookup("tenant")
		require.NotNil(t, flag, c.Name())
		assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag], c.Name())
	}
	for _, c := range []*cobra.Command{resyncCmd, exportCmd} {
		require.NotNil(t, c.Flags().Lookup("from"), c.Name())
	}

	imp, _, err := rootCmd.Find([]string{"template", "import"})
	require.NoError(t, err)
	assert.Same(t, templateImportCmd, imp)
	assert.Equal(t, "cli", imp.Flags().Lookup("user").DefValue)
}

func TestExportCommand_DefaultOutput(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "summaries.xlsx", flag.DefValue)
	assert.Equal(t, "o", flag.Shorthand)
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("2024-03-01", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, r.From, r.To)

	r, err = parseRange("2024-03-01", "2024-03-07")
	require.NoError(t, err)
	assert.Len(t, r.Dates(), 7)

	_, err = parseRange("03/01/2024", "")
	assert.ErrorContains(t, err, "--from")
	_, err = parseRange("2024-03-01", "soon")
	assert.ErrorContains(t, err, "--to")
}
