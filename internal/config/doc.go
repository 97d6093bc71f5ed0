// Package config loads the runtime configuration.
//
// # Overview
//
// Configuration is read with Viper from a YAML file and merged with
// environment variables. A missing file is created from Default on first
// load, so a fresh install runs offline with the mock response generator,
// the console voice input and simulated vision and state inputs.
//
// # Environment Variables
//
// Every key can be overridden with the T031A5_ prefix. Nested keys are
// joined with underscores.
//
// Examples:
//   - T031A5_HERTZ=20
//   - T031A5_LLM_PROVIDER=ollama
//   - T031A5_LLM_API_KEY=sk-...
//   - T031A5_LOGGING_LEVEL=debug
//
// # Plugins
//
// agent_inputs and agent_actions map a plugin type (G1Voice, G1Speech, ...)
// to its block. Viper folds keys to lower case, so the keys are matched back
// to the known type names; unknown keys are kept as written and resolve to
// the no-op stand-in at startup.
//
//	agent_inputs:
//	  G1Voice:
//	    driver: console
//	  G1Vision:
//	    driver: simulated
//	    timeout: 500ms
//	agent_actions:
//	  G1Speech:
//	    driver: log
//	    options:
//	      latency: 50ms
package config
