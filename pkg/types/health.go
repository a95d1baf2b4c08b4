package types

// ProbeResult is the outcome of one probe (all of its attempts) against a URL.
// It is produced once and never mutated after return.
type ProbeResult struct {
	Endpoint  string `json:"endpoint,omitempty"`
	OK        bool   `json:"ok"`
	Status    int    `json:"status,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthResult is the outcome of checking one (kind, host, port) candidate.
type HealthResult struct {
	Kind     BackendKind   `json:"kind"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Healthy  bool          `json:"healthy"`
	Endpoint string        `json:"endpoint,omitempty"`
	Attempts []ProbeResult `json:"attempts,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// FirstHealthy returns the first healthy result in scan order.
func FirstHealthy(results []HealthResult) (HealthResult, bool) {
	for _, r := range results {
		if r.Healthy {
			return r, true
		}
	}
	return HealthResult{}, false
}
