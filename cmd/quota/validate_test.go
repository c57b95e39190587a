package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/quota/pkg/cli"
)

const validConfig = `
quota:
  global_capacity: 1GiB
  session_capacity: 4MiB
  identity_capacity: 64MiB
  strategy: advisory
`

func TestWriteValidationText(t *testing.T) {
	origCfg := cfgFile
	defer func() { cfgFile = origCfg }()
	cfgFile = writeConfig(t, t.TempDir(), validConfig)

	cfg, err := loadConfig(cfgFile, false)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	buf := &bytes.Buffer{}
	if err := writeValidation(buf, cli.FormatText, cfg); err != nil {
		t.Fatalf("writeValidation failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"is valid", "advisory", "1.0 GiB", "4.0 MiB", "64 MiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteValidationJSON(t *testing.T) {
	origCfg := cfgFile
	defer func() { cfgFile = origCfg }()
	cfgFile = writeConfig(t, t.TempDir(), validConfig)

	cfg, err := loadConfig(cfgFile, false)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	buf := &bytes.Buffer{}
	if err := writeValidation(buf, cli.FormatJSON, cfg); err != nil {
		t.Fatalf("writeValidation failed: %v", err)
	}

	var got effectiveConfig
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if got.Quota.GlobalCapacity != 1<<30 {
		t.Errorf("Expected global capacity 1GiB, got %d", got.Quota.GlobalCapacity)
	}
	if !got.MetricsEnabled {
		t.Error("Expected metrics to default to enabled")
	}
}

func TestRunValidateInvalid(t *testing.T) {
	origCfg, origFormat := cfgFile, validateFlags.format
	defer func() { cfgFile, validateFlags.format = origCfg, origFormat }()

	cfgFile = writeConfig(t, t.TempDir(), "quota:\n  strategy: lenient\n")
	validateFlags.format = "text"

	err := runValidate(validateCmd, nil)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("Expected config exit code, got %d", cli.ExitCode(err))
	}
}

func TestRunValidateBadFormat(t *testing.T) {
	origFormat := validateFlags.format
	defer func() { validateFlags.format = origFormat }()
	validateFlags.format = "yaml"

	if err := runValidate(validateCmd, nil); err == nil {
		t.Error("Expected error for unknown format")
	}
}
