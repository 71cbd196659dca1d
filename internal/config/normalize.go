package config

import "strings"

func (c *Config) normalize() {
	c.Converter.Binary = strings.TrimSpace(c.Converter.Binary)
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaultConverterBinary
	}
	if c.Converter.TimeoutSeconds <= 0 {
		c.Converter.TimeoutSeconds = defaultConverterTimeoutSeconds
	}

	c.Upload.BaseURL = strings.TrimRight(strings.TrimSpace(c.Upload.BaseURL), "/")
	if c.Upload.BaseURL == "" {
		c.Upload.BaseURL = defaultUploadBaseURL
	}
	if c.Upload.RequestTimeoutSeconds <= 0 {
		c.Upload.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Upload.UploadTimeoutSeconds <= 0 {
		c.Upload.UploadTimeoutSeconds = defaultUploadTimeoutSeconds
	}
	if c.Upload.RetryMaxAttempts <= 0 {
		c.Upload.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.Upload.RetryBaseDelaySeconds <= 0 {
		c.Upload.RetryBaseDelaySeconds = defaultRetryBaseDelaySeconds
	}
	if c.Upload.RetryMaxDelaySeconds <= 0 {
		c.Upload.RetryMaxDelaySeconds = defaultRetryMaxDelaySeconds
	}
	if c.Upload.JobPollSeconds <= 0 {
		c.Upload.JobPollSeconds = defaultJobPollSeconds
	}

	if c.Processing.Workers <= 0 {
		c.Processing.Workers = defaultWorkers
	}
	if c.Processing.PulseCoefficients <= 0 {
		c.Processing.PulseCoefficients = defaultPulseCoefficients
	}
	if c.Processing.RegistryFields == nil {
		c.Processing.RegistryFields = defaultRegistryFields()
	}
	fields := make([]string, 0, len(c.Processing.RegistryFields))
	for _, field := range c.Processing.RegistryFields {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}
	c.Processing.RegistryFields = fields
	if c.Processing.MinFreeSpaceGiB < 0 {
		c.Processing.MinFreeSpaceGiB = 0
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
