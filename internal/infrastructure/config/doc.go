// Package config handles loading and validating Identity Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Token-lifetime duration expressions (<integer><unit>, unit s/m/h/d)
//
// Security Considerations:
//   - Signing secrets should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Access and refresh secrets must differ and be at least 32 characters
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name)
package config
