// Package config handles loading, validating and saving the web mixer configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with WEBMIXER_* environment variables
//   - Validation of required fields
//   - Saving configuration after admin edits
//
// A missing config file is not an error: the defaults are used and
// Config.FirstRun is set so the caller can point the operator at the admin page.
//
// Security Considerations:
//   - Broker passwords and tokens should be set via environment variables
//   - Save writes the file with 0600 permissions
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Desk.Host)
package config
