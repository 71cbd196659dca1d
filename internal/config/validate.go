package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	var problems []string

	if parsed, err := url.Parse(c.Upload.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		problems = append(problems, fmt.Sprintf("upload.base_url %q is not an absolute URL", c.Upload.BaseURL))
	}
	if c.Processing.PulseCoefficients > 32 {
		problems = append(problems, fmt.Sprintf("processing.pulse_coefficients %d exceeds the supported maximum of 32", c.Processing.PulseCoefficients))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
