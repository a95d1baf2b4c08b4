// Package tools contains MCP tool implementations for formsense.
package tools

import (
	"github.com/usestring/formsense/pkg/types"
)

// MIME type constant.
const MimeJSON = "application/json"

// BackendHealth is the health of one backend candidate.
type BackendHealth struct {
	Kind     string         `json:"kind"`
	Host     string         `json:"host"`
	Port     int            `json:"port"`
	Healthy  bool           `json:"healthy"`
	Endpoint string         `json:"endpoint,omitempty"`
	Error    string         `json:"error,omitempty"`
	Attempts []ProbeAttempt `json:"attempts,omitzero"`
}

// ProbeAttempt is the outcome of probing one health path.
type ProbeAttempt struct {
	Endpoint  string `json:"endpoint"`
	OK        bool   `json:"ok"`
	Status    int    `json:"status,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// BackendRef names the backend a classification ran against.
type BackendRef struct {
	Kind    string `json:"kind"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	BaseURL string `json:"base_url"`
}

// BuildBackendHealth converts a HealthResult for tool output.
// Attempts are included only when withAttempts is set.
func BuildBackendHealth(r types.HealthResult, withAttempts bool) BackendHealth {
	h := BackendHealth{
		Kind:     string(r.Kind),
		Host:     r.Host,
		Port:     r.Port,
		Healthy:  r.Healthy,
		Endpoint: r.Endpoint,
		Error:    r.Error,
	}
	if withAttempts && len(r.Attempts) > 0 {
		h.Attempts = make([]ProbeAttempt, len(r.Attempts))
		for i, a := range r.Attempts {
			h.Attempts[i] = ProbeAttempt{
				Endpoint:  a.Endpoint,
				OK:        a.OK,
				Status:    a.Status,
				LatencyMs: a.LatencyMs,
				Attempts:  a.Attempts,
				Error:     a.Error,
			}
		}
	}
	return h
}
