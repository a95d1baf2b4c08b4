// Package prompts contains MCP prompt implementations for formsense.
package prompts

// Config holds configuration needed by prompts.
type Config struct {
	LowConfidenceThreshold float64
	BatchSize              int
	// StoreEnabled reports whether backend health is recorded between calls.
	StoreEnabled bool
}
