package cmd

import (
	"bytes"
	"testing"
)

func TestConfigGetSetSubcommands(t *testing.T) {
	avmlConfigDirFlag = t.TempDir()
	defer func() { avmlConfigDirFlag = "" }()

	setCmd := newConfigCmd()
	setCmd.SetArgs([]string{"set", "log_level", "warn"})
	var setOut bytes.Buffer
	setCmd.SetOut(&setOut)
	if err := setCmd.Execute(); err != nil {
		t.Fatalf("config set: %v", err)
	}

	getCmd := newConfigCmd()
	getCmd.SetArgs([]string{"get", "log_level"})
	var getOut bytes.Buffer
	getCmd.SetOut(&getOut)
	if err := getCmd.Execute(); err != nil {
		t.Fatalf("config get: %v", err)
	}
	if got := getOut.String(); got != "warn\n" {
		t.Errorf("config get log_level = %q, want \"warn\\n\"", got)
	}
}

func TestConfigGetUnknownKeyIsError(t *testing.T) {
	avmlConfigDirFlag = t.TempDir()
	defer func() { avmlConfigDirFlag = "" }()

	getCmd := newConfigCmd()
	getCmd.SetArgs([]string{"get", "nonexistent"})
	getCmd.SetOut(&bytes.Buffer{})
	if err := getCmd.Execute(); err == nil {
		t.Error("expected an error for an unknown config key")
	}
}
