package config

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// IsProductionLike returns true for staging and production.
func (c *Config) IsProductionLike() bool {
	return c.Server.Environment == EnvStaging || c.Server.Environment == EnvProduction
}
