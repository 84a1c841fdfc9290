// Package config loads hapticd settings.
//
// Values come from built-in defaults, then the YAML file named by
// HAPTICS_CONFIG (default configs/config.yaml), then HAPTICS_* environment
// variables. Validate reports every problem at once.
//
// Secrets (MQTT password, InfluxDB token, JWT secret) belong in the
// environment. security.jwt.secret has no default and must be at least 32
// characters: a forged token can drive every connected actuator.
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	tick := cfg.GetTickInterval()
package config
