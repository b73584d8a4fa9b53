// Package protocol provides the JSON messages exchanged with UI clients and
// MQTT subscribers. It is importable without pulling in server dependencies.
package protocol

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"` // RFC3339 format
	Version   string `json:"version,omitempty"`
}

// ReadingsResponse is returned by GET /api/v1/readings.
type ReadingsResponse struct {
	SerialNumber string    `json:"serialNumber,omitempty"`
	Count        int       `json:"count"`
	Readings     []Reading `json:"readings"`
}

// LogsResponse is returned by GET /api/v1/logs.
type LogsResponse struct {
	Capacity int `json:"capacity"`
	Entries  any `json:"entries"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Error codes for ErrorResponse and WebSocket error payloads
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeUnknownType     = "UNKNOWN_TYPE"
	ErrCodeNoSensorData    = "NO_SENSOR_DATA"
	ErrCodeScanFailed      = "SCAN_FAILED"
	ErrCodeConnectFailed   = "CONNECT_FAILED"
	ErrCodePollFailed      = "POLL_FAILED"
	ErrCodeKeysUnavailable = "KEYS_UNAVAILABLE"
	ErrCodeBusy            = "BUSY"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)
