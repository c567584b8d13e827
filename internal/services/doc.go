// Package services defines shared utilities consumed by the pipeline stages
// and external tool clients.
//
// Key responsibilities:
//   - Context helpers that stamp episode IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across stages.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
