package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Port:       "8420",
		JWTSecret:  "a-development-secret-that-is-long-enough!",
		DBPassword: "hunter2-but-stronger",
		DBSSLMode:  "disable",
		Env:        "development",
	}
}

func TestValidateAcceptsDevelopmentDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresPort(t *testing.T) {
	cfg := validConfig()
	cfg.Port = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDefaultSecretInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.JWTSecret = "your-secret-key-change-in-production"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsShortSecretInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsWeakDBPasswordInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "prod"
	cfg.DBPassword = "password"
	assert.Error(t, cfg.Validate())
}
