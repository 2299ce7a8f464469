// Package logger provides component-scoped structured logging.
//
// Each subsystem logs through a ComponentLogger so output can be filtered per
// component (player, extract, interp, signature, nparam, cache, client, format).
// Entries are rendered as text, JSON or colored text. Configuration comes from
// LogConfig, usually loaded from the module config file and then overlaid with
// DESCRAMBLE_LOG_* environment variables:
//
//	cfg := logger.EnvironmentConfig(nil)
//	log, closer, err := cfg.Build()
//	if err != nil {
//		return err
//	}
//	defer closer.Close()
//	log.WithComponent(logger.ComponentSignature).Warn("fast path disabled", logger.Fields{
//		"player": "abc123",
//	})
package logger
