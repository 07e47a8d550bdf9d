package main

import (
	"path/filepath"
	"testing"

	altsrc "github.com/urfave/cli-altsrc/v3"
)

func TestFlags(t *testing.T) {
	if len(flags(altsrc.StringSourcer(""))) == 0 {
		t.Errorf("flags() should never be nil or empty")
	}
}

func TestConfigDirAndFile(t *testing.T) {
	d := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", d)

	got := configFile()
	want := filepath.Join(d, ConfigDirName, ConfigFileName)
	if got.SourceURI() != want {
		t.Errorf("configFile() = %q, want %q", got.SourceURI(), want)
	}
}

func TestValidateAddress(t *testing.T) {
	if err := validateAddress(""); err == nil {
		t.Error("validateAddress(\"\") should reject an empty address")
	}
	if err := validateAddress(":25188"); err != nil {
		t.Errorf("validateAddress(\":25188\") = %v, want nil", err)
	}
}
