package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ResolveDBPassword fills DB.Password when it is sourced from Secrets Manager.
// A directly configured password (env or file) takes precedence.
func (c *Config) ResolveDBPassword(ctx context.Context, sm SecretsAPI) error {
	if c.DB.Password != "" || c.DB.PasswordSecret == "" {
		c.DB.Password = ResolveEnvVars(c.DB.Password)
		return nil
	}

	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.DB.PasswordSecret),
	})
	if err != nil {
		return fmt.Errorf("failed to read secret %s: %w", c.DB.PasswordSecret, err)
	}

	var secret struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &secret); err != nil {
		return fmt.Errorf("failed to parse secret %s: %w", c.DB.PasswordSecret, err)
	}
	if secret.Password == "" {
		return fmt.Errorf("secret %s has no password field", c.DB.PasswordSecret)
	}

	c.DB.Password = secret.Password
	return nil
}
