package config

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Bucket: "esizzle-documents",
		Region: "us-east-1",
		DB: DBConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "esizzle_api",
			Database: "LoanMaster",
		},
		Progress: ProgressConfig{
			Enabled: true,
		},
		TimeoutSeconds:        840,
		SafetyMarginSeconds:   60,
		RecoveryWindowSeconds: 0,
	}
}
