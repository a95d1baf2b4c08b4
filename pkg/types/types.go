// Package types provides shared types for formsense.
// These types are used across multiple packages and are designed for external consumption.
package types

import (
	"fmt"
	"strings"
)

// BackendKind identifies a local inference server flavor.
type BackendKind string

// Supported backend kinds.
const (
	// BackendOllama exposes GET /v1/models and POST /v1/completions.
	BackendOllama BackendKind = "ollama"
	// BackendLMStudio exposes POST /api/generate.
	BackendLMStudio BackendKind = "lmstudio"
)

// Default ports per backend kind.
const (
	DefaultOllamaPort   = 11434
	DefaultLMStudioPort = 8000
)

// Kinds lists every supported backend kind in scan order.
func Kinds() []BackendKind {
	return []BackendKind{BackendOllama, BackendLMStudio}
}

// ParseBackendKind converts a user-supplied string into a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch BackendKind(strings.ToLower(strings.TrimSpace(s))) {
	case BackendOllama:
		return BackendOllama, nil
	case BackendLMStudio:
		return BackendLMStudio, nil
	default:
		return "", fmt.Errorf("unknown backend kind %q (want ollama or lmstudio)", s)
	}
}

// DefaultPort returns the conventional port for the kind, or 0 if unknown.
func (k BackendKind) DefaultPort() int {
	switch k {
	case BackendOllama:
		return DefaultOllamaPort
	case BackendLMStudio:
		return DefaultLMStudioPort
	default:
		return 0
	}
}

// PageContext describes the page a form was collected from.
type PageContext struct {
	PageTitle string `json:"pageTitle,omitempty"`
	PageURL   string `json:"pageUrl,omitempty"`
	Company   string `json:"company,omitempty"`
}
