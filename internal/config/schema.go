package config

// Config holds workman configuration.
// Every field can come from a YAML config file or a WORKMAN_* environment
// variable; the worker typically runs config-file-less on env alone.
type Config struct {
	// Bucket is the S3 bucket holding document objects.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Region is the AWS region for S3 and Secrets Manager.
	Region string `mapstructure:"region" yaml:"region"`

	DB       DBConfig       `mapstructure:"db" yaml:"db"`
	Progress ProgressConfig `mapstructure:"progress" yaml:"progress"`

	// TimeoutSeconds is the default wall-clock budget per invocation.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// SafetyMarginSeconds aborts the run when less budget than this remains.
	SafetyMarginSeconds int `mapstructure:"safety_margin_seconds" yaml:"safety_margin_seconds"`
	// RecoveryWindowSeconds allows reclaiming a stale InWorkman document.
	// Zero disables reclaiming: a document already InWorkman fails fast.
	RecoveryWindowSeconds int `mapstructure:"recovery_window_seconds" yaml:"recovery_window_seconds"`
}

// DBConfig holds metadata database connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	// Password supports ${ENV_VAR} syntax. Leave empty to use PasswordSecret.
	Password string `mapstructure:"password" yaml:"password"`
	// PasswordSecret names an AWS Secrets Manager secret whose JSON payload
	// carries a "password" field. Used when Password is empty.
	PasswordSecret string `mapstructure:"password_secret" yaml:"password_secret"`
	Database       string `mapstructure:"database" yaml:"database"`
}

// ProgressConfig holds progress callback settings.
type ProgressConfig struct {
	// CallbackURL is the base URL; the session id is appended per update.
	CallbackURL string `mapstructure:"callback_url" yaml:"callback_url"`
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
}
