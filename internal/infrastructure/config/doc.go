// Package config handles loading and validating driftdb configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Bootstrapping a stable installation persistence key
//
// Security Considerations:
//   - The config file should have restricted permissions (0600)
//   - The installation key file is written owner-only (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	key, err := config.EnsurePersistenceKey(cfg)
package config
