package procrun

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunSuccess(t *testing.T) {
	res, err := Run(context.Background(), Config{Program: "echo", Args: []string{"hello"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("Stdout = %q, want hello", res.Stdout)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), Config{Program: "sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestRunLineFunc(t *testing.T) {
	var lines []string
	_, err := Run(context.Background(), Config{
		Program: "printf",
		Args:    []string{"a\\nb\\n"},
		LineFunc: func(stream, line string) {
			lines = append(lines, stream+":"+line)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(lines) != 2 || lines[0] != "stdout:a" || lines[1] != "stdout:b" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Run(ctx, Config{Program: "sleep", Args: []string{"5"}})
	if err == nil {
		t.Fatal("expected error from cancelled run")
	}
}
