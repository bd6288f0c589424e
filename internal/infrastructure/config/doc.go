// Package config handles loading and validating Gatekeeper Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (GATEKEEPER_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - Operator passwords are stored as Argon2id hashes, never in plaintext
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Devices.ProbeTimeout)
package config
