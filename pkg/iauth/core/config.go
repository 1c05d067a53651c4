package core

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegistryConfig configures the process-wide registry.
type RegistryConfig struct {
	// ServerName is this server's own name, sent after "Server" in the
	// greeting line.
	ServerName string `validate:"required"`
}

// Validate checks RegistryConfig against its struct tags.
func (c RegistryConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("registry configuration validation failed: %w", err)
	}
	return nil
}

// ConnConfig configures one authority connection. It is the argument to
// ConnectOrUpdate and is re-validated on every call.
type ConnConfig struct {
	Host           string        `validate:"required"`
	Port           uint16        `validate:"required"`
	Password       string        `validate:"max=128"`
	ReconnectDelay time.Duration `validate:"required,min=1s"`
	RequestTimeout time.Duration `validate:"required,min=1s"`
}

// Validate checks ConnConfig against its struct tags.
func (c ConnConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("connection configuration validation failed: %w", err)
	}
	return nil
}
