package sshpool

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashCommandNeverLeaksRawCommand(t *testing.T) {
	cmd := "cd /data/stacks/myapp && docker compose -p myapp up -d"
	hash := HashCommand(cmd)
	if len(hash) != 16 {
		t.Fatalf("HashCommand() length = %d, want 16", len(hash))
	}
	if strings.Contains(hash, "docker") || strings.Contains(hash, "myapp") {
		t.Fatalf("hash unexpectedly contains plaintext fragments: %s", hash)
	}
}

func TestAuditLogRecordWritesLineWithoutRawCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	log, err := NewAuditLog(path)
	if err != nil {
		t.Fatalf("NewAuditLog error: %v", err)
	}
	defer log.Close()

	secretCmd := "docker compose -p myapp exec db mysqldump -psupersecret"
	if err := log.Record("db01.internal", "deploy", secretCmd, true, nil); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := log.Record("db01.internal", "deploy", "docker ps", false, errors.New("boom")); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "supersecret") {
			t.Fatalf("audit log line leaked secret: %s", line)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], `"error":"boom"`) {
		t.Fatalf("expected second line to carry error message, got: %s", lines[1])
	}
	if !strings.Contains(lines[0], `"command_length":`) {
		t.Fatalf("expected command_length field in audit line, got: %s", lines[0])
	}
}
