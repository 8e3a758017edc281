package llm

import (
	"encoding/json"

	"github.com/xhad/vecingest/internal/types"
)

var healthStatuses = map[string]types.ReadinessStatus{
	"ok":            types.StatusReady,
	"loading model": types.StatusLoading,
	"error":         types.StatusError,
}

// ParseStatus maps the status text reported by the inference server.
func ParseStatus(s string) types.ReadinessStatus {
	if status, ok := healthStatuses[s]; ok {
		return status
	}
	return types.StatusUnknown
}

type healthResponse struct {
	Status string `json:"status"`
}

// decodeHealth never fails: anything that isn't a JSON object with a known
// status string is reported as unknown.
func decodeHealth(body []byte) types.ReadinessStatus {
	var res healthResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return types.StatusUnknown
	}
	return ParseStatus(res.Status)
}
