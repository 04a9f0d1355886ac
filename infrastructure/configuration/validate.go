package configuration

import (
	"strconv"

	"socialops/domain/model"
	"socialops/infrastructure/security"
)

// Validate checks the settings the process cannot run without. It is called
// once at startup; main exits on error.
func (c *Config) Validate() error {
	if _, err := security.ParseKey(c.Security.EncryptionKey); err != nil {
		return err
	}
	if !c.OAuth.Twitter.Enabled() && !c.OAuth.LinkedIn.Enabled() {
		return &model.ConfigurationError{Setting: "oauth", Reason: "no platform client configured"}
	}
	switch c.Database.Vendor {
	case "postgres", "mssql":
	default:
		return &model.ConfigurationError{Setting: "database.vendor", Reason: "unsupported vendor " + strconv.Quote(c.Database.Vendor)}
	}
	if c.Metrics.Concurrency < 1 {
		return &model.ConfigurationError{Setting: "metrics.concurrency", Reason: "must be at least 1"}
	}
	return nil
}
