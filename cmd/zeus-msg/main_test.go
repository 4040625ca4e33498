package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePayloadRejectsZeroOrMultipleSources(t *testing.T) {
	if _, err := resolvePayload("", "", false); err == nil {
		t.Fatalf("expected error with no payload source")
	}
	if _, err := resolvePayload("some/path", "hi", false); err == nil {
		t.Fatalf("expected error with two payload sources")
	}
}

func TestResolvePayloadText(t *testing.T) {
	got, err := resolvePayload("", "hello there", false)
	if err != nil {
		t.Fatalf("resolvePayload: %v", err)
	}
	if got != "hello there" {
		t.Fatalf("got %q, want %q", got, "hello there")
	}
}

func TestSenderIdentityFromEnvRequiresAgentID(t *testing.T) {
	t.Setenv("ZEUS_AGENT_ID", "")
	if _, err := senderIdentityFromEnv(); err == nil {
		t.Fatalf("expected error when ZEUS_AGENT_ID is unset")
	}
}

func TestSenderIdentityFromEnvDefaultsNameToAgentID(t *testing.T) {
	t.Setenv("ZEUS_AGENT_ID", "hoplite-7")
	t.Setenv("ZEUS_AGENT_NAME", "")
	id, err := senderIdentityFromEnv()
	if err != nil {
		t.Fatalf("senderIdentityFromEnv: %v", err)
	}
	if id.Name != "hoplite-7" {
		t.Fatalf("Name = %q, want fallback to agent id", id.Name)
	}
}

func TestRunSendCmdEnqueuesTextPayload(t *testing.T) {
	stateDir := t.TempDir()
	tmpDir := t.TempDir()

	t.Setenv("ZEUS_STATE_DIR", stateDir)
	t.Setenv("ZEUS_MESSAGE_TMP_DIR", tmpDir)
	t.Setenv("ZEUS_CONFIG_FILE", "")
	t.Setenv("ZEUS_AGENT_ID", "hippeus-1")
	t.Setenv("ZEUS_AGENT_NAME", "")
	t.Setenv("ZEUS_ROLE", "")
	t.Setenv("ZEUS_PARENT_ID", "")
	t.Setenv("ZEUS_PHALANX_ID", "")

	var stdout, stderr bytes.Buffer
	code := runSendCmd([]string{"--to", "agent:hoplite-1", "--text", "status?"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runSendCmd exit = %d, stderr = %s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "ZEUS_MSG_ENQUEUED=") {
		t.Fatalf("stdout = %q, want ZEUS_MSG_ENQUEUED= prefix", stdout.String())
	}

	entries, err := os.ReadDir(filepath.Join(stateDir, "queue", "new"))
	if err != nil {
		t.Fatalf("ReadDir queue/new: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 enqueued envelope, got %d", len(entries))
	}
}

func TestRunSendCmdRejectsMissingTo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runSendCmd([]string{"--text", "hi"}, &stdout, &stderr)
	if code == 0 {
		t.Fatalf("expected non-zero exit when --to is missing")
	}
}
