package cyz2json

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"cytopipe/internal/services"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/cyz2json"))
	if cli.binary != "/opt/cyz2json" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestConvertRequiresInput(t *testing.T) {
	cli := NewCLI()
	if err := cli.Convert(context.Background(), "", "/tmp/out.json"); err == nil {
		t.Fatal("expected error when input path is empty")
	}
}

func TestConvertRequiresOutput(t *testing.T) {
	cli := NewCLI()
	if err := cli.Convert(context.Background(), "/data/sample.cyz", ""); err == nil {
		t.Fatal("expected error when output path is empty")
	}
}

func TestConvertPassesPaths(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "CYZ2JSON_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() { commandContext = original })

	cli := NewCLI()
	if err := cli.Convert(context.Background(), "/data/sample.cyz", "/work/sample.json"); err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if len(capturedArgs) != 4 || capturedArgs[0] != "/data/sample.cyz" ||
		capturedArgs[1] != "--raw" || capturedArgs[2] != "--output" || capturedArgs[3] != "/work/sample.json" {
		t.Fatalf("unexpected args: %v", capturedArgs)
	}
}

func TestConvertFailureIncludesToolOutput(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	err := cli.Convert(context.Background(), "/data/sample.cyz", "/work/sample.json")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "unreadable header") {
		t.Fatalf("expected tool output in error, got %v", err)
	}
}

func TestAvailableMissingBinary(t *testing.T) {
	original := lookPath
	lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	t.Cleanup(func() { lookPath = original })

	cli := NewCLI()
	if err := cli.Available(); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("CYZ2JSON_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("CYZ2JSON_HELPER_MODE") {
	case "success":
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "unreadable header")
		os.Exit(2)
	default:
		os.Exit(0)
	}
}
