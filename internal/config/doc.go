// Package config loads evstore settings from a JSON or YAML file and
// overlays EVSTORE_* environment variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/evstore.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// The Init section only takes effect on the first start of a data
// directory; see internal/deployment.
package config
