package cyz2json

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"cytopipe/internal/services"
)

var commandContext = exec.CommandContext

var lookPath = exec.LookPath

// Client defines converter behaviour.
type Client interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
	Available() error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the cyz2json command-line converter.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "cyz2json"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Available reports whether the converter binary can be resolved on PATH.
func (c *CLI) Available() error {
	if _, err := lookPath(c.binary); err != nil {
		return fmt.Errorf("%w: converter binary %q not found", services.ErrExternalTool, c.binary)
	}
	return nil
}

// Convert launches the converter on one acquisition file, writing the
// structured document to outputPath. Callers pass a staging path and rename
// on success so a crashed conversion never leaves a partial artifact.
func (c *CLI) Convert(ctx context.Context, inputPath, outputPath string) error {
	if inputPath == "" {
		return errors.New("input path required")
	}
	if outputPath == "" {
		return errors.New("output path required")
	}

	args := []string{inputPath, "--raw", "--output", outputPath}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: converter: %v", services.ErrTimeout, ctx.Err())
		}
		detail := strings.TrimSpace(output.String())
		if detail != "" {
			return fmt.Errorf("%w: converter failed: %v: %s", services.ErrExternalTool, err, truncate(detail, 500))
		}
		return fmt.Errorf("%w: converter failed: %v", services.ErrExternalTool, err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

var _ Client = (*CLI)(nil)
