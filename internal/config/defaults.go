package config

const (
	defaultConverterBinary         = "cyz2json"
	defaultConverterTimeoutSeconds = 600
	defaultUploadBaseURL           = "https://ecotaxa.obs-vlfr.fr/api"
	defaultRequestTimeoutSeconds   = 30
	defaultUploadTimeoutSeconds    = 300
	defaultRetryMaxAttempts        = 4
	defaultRetryBaseDelaySeconds   = 2
	defaultRetryMaxDelaySeconds    = 30
	defaultJobPollSeconds          = 2
	defaultWorkers                 = 1
	defaultPulseCoefficients       = 10
	defaultMinFreeSpaceGiB         = 1
	defaultLogLevel                = "info"
	defaultLogFormat               = "console"
)

func defaultRegistryFields() []string {
	return []string{
		"object_lon",
		"object_lat",
		"object_date",
		"object_time",
		"object_depth_min",
		"object_depth_max",
		"object_lon_end",
		"object_lat_end",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Converter: Converter{
			Binary:         defaultConverterBinary,
			TimeoutSeconds: defaultConverterTimeoutSeconds,
		},
		Upload: Upload{
			BaseURL:               defaultUploadBaseURL,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			UploadTimeoutSeconds:  defaultUploadTimeoutSeconds,
			RetryMaxAttempts:      defaultRetryMaxAttempts,
			RetryBaseDelaySeconds: defaultRetryBaseDelaySeconds,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
			JobPollSeconds:        defaultJobPollSeconds,
		},
		Processing: Processing{
			Workers:           defaultWorkers,
			PulseCoefficients: defaultPulseCoefficients,
			RegistryFields:    defaultRegistryFields(),
			MinFreeSpaceGiB:   defaultMinFreeSpaceGiB,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
