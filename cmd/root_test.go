package cmd

import (
	"bytes"
	"slices"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	RootCmd.SetArgs([]string{"--help"})

	if err := RootCmd.Execute(); err != nil {
		t.Errorf("root command with --help failed: %v", err)
	}
	if !strings.Contains(buf.String(), "pgcompose compares, sorts and merges") {
		t.Errorf("expected help output to contain description, got: %s", buf.String())
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	var names []string
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"compare", "sort", "merge", "deploy", "serve", "version"} {
		if !slices.Contains(names, expected) {
			t.Errorf("expected subcommand %s not found in: %v", expected, names)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	RootCmd.SetArgs([]string{"version"})

	if err := RootCmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	output := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(output, "pgcompose v") {
		t.Errorf("expected output to start with 'pgcompose v', got: %s", output)
	}
}

func TestInvalidLogFormat(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	RootCmd.SetArgs([]string{"version", "--log-format", "xml"})
	t.Cleanup(func() { LogFormat = "text" })

	if err := RootCmd.Execute(); err == nil {
		t.Error("expected an error for an unknown log format")
	}
}
