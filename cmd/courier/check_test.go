package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zulandar/courier/internal/config"
)

const validConfig = `platform: slack
admins: ["U1"]
slack: {app_token: xapp-1, bot_token: xoxb-1}
mail:
  from: ops@example.com
  smtp:
    host: smtp.example.com
`

func runCheck(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"check-config"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestCheckConfig_Pass(t *testing.T) {
	path := writeConfig(t, validConfig)
	out, err := runCheck(t, "-c", path)
	if err != nil {
		t.Fatalf("check-config failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration OK") {
		t.Errorf("expected 'Configuration OK', got: %s", out)
	}
	if !strings.Contains(out, "AI drafting") {
		t.Errorf("expected AI feature line, got: %s", out)
	}
}

func TestCheckConfig_ListsEveryProblem(t *testing.T) {
	path := writeConfig(t, "platform: slack\nlocale: de\n")
	out, err := runCheck(t, "--config", path)
	if err == nil {
		t.Fatalf("expected failure, got output: %s", out)
	}
	for _, want := range []string{"slack.bot_token", "locale", "admin user ID"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to mention %q, got: %s", want, out)
		}
	}
	if !strings.Contains(out, "problem(s) found") {
		t.Errorf("expected problem summary, got: %s", out)
	}
}

func TestCheckConfig_NoMailIsNotFatal(t *testing.T) {
	path := writeConfig(t, "platform: slack\nadmins: [\"U1\"]\nslack: {app_token: xapp-1, bot_token: xoxb-1}\n")
	out, err := runCheck(t, "-c", path)
	if err != nil {
		t.Fatalf("check-config failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Sending: no mail transport") {
		t.Errorf("expected a Sending OFF line, got: %s", out)
	}
}

func TestCheckConfig_MissingFile(t *testing.T) {
	out, err := runCheck(t, "-c", "/nonexistent/courier.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(out, "Config file") {
		t.Errorf("expected 'Config file' line, got: %s", out)
	}
}

func TestFeatureResults(t *testing.T) {
	cfg, err := config.Parse([]byte(validConfig + "ai:\n  api_key: sk-1\ndatabase:\n  driver: sqlite\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	results := featureResults(cfg)
	byName := map[string]checkResult{}
	for _, r := range results {
		byName[r.name] = r
	}
	if byName["AI drafting"].status != "PASS" {
		t.Errorf("AI drafting = %+v, want PASS", byName["AI drafting"])
	}
	if byName["Delivery log"].status != "PASS" {
		t.Errorf("Delivery log = %+v, want PASS", byName["Delivery log"])
	}
}
