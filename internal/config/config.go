package config

import (
	"os"
	"path/filepath"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/util"
	"github.com/LerianStudio/lib-commons/commons/log"
)

// ClientConfig holds the resolved configuration of the activation client
type ClientConfig struct {
	StatusFile   string `validate:"required"`
	DeviceIDFile string `validate:"required"`

	// Public IP echo services, tried in order
	PublicIPEndpoints []string `validate:"dive,url"`

	// HTTP configuration
	HTTPTimeout time.Duration `validate:"gt=0"`

	// Background re-verification
	RefreshInterval time.Duration `validate:"gt=0"`
	RetryInterval   time.Duration `validate:"gt=0"`
	RetryAttempts   uint          `validate:"gte=1"`

	// Activation policy
	StrictDeviceLimit bool
	AttemptsPerMinute int `validate:"gte=0"`
}

// DefaultDataDir returns the directory holding the local activation files
func DefaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}

	return filepath.Join(base, cn.DefaultDataDirName)
}

// NewDefaultConfig creates a new config with sensible defaults
func NewDefaultConfig() ClientConfig {
	return NewConfigForDir(DefaultDataDir())
}

// NewConfigForDir creates a default config whose files live in dir
func NewConfigForDir(dir string) ClientConfig {
	return ClientConfig{
		StatusFile:        filepath.Join(dir, cn.DefaultStatusFileName),
		DeviceIDFile:      filepath.Join(dir, cn.DefaultDeviceIDFileName),
		PublicIPEndpoints: append([]string(nil), cn.DefaultPublicIPEndpoints...),
		HTTPTimeout:       cn.DefaultHTTPTimeoutSeconds * time.Second,
		RefreshInterval:   cn.DefaultRefreshIntervalHours * time.Hour,
		RetryInterval:     5 * time.Second,
		RetryAttempts:     3,
	}
}

// Validate checks if the configuration is valid
func (c *ClientConfig) Validate(l log.Logger) error {
	return util.ValidateConfig(c, l)
}
