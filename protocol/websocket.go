package protocol

// WebSocket message type constants
const (
	WSTypeSensorInfo    = "sensorInfo"
	WSTypeReadings      = "readings"
	WSTypeSessionStatus = "sessionStatus"
	WSTypeError         = "error"

	// Requests from clients
	WSTypeScan       = "scan"
	WSTypeConnect    = "connect"
	WSTypeDisconnect = "disconnect"
	WSTypeStatus     = "status"
	WSTypePoll       = "poll"
)

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Reading is one glucose value on the wire.
type Reading struct {
	Timestamp string  `json:"timestamp"` // RFC3339 format
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	MmolL     float64 `json:"mmolL"`
}

// SensorInfoPayload is broadcast after a successful tag scan.
type SensorInfoPayload struct {
	SerialNumber   string    `json:"serialNumber"`
	StartTime      string    `json:"sensorStartTime,omitempty"` // RFC3339 format
	CurrentGlucose float64   `json:"currentGlucose"`
	Trend          string    `json:"trend"`
	TrendArrow     string    `json:"trendArrow"`
	State          string    `json:"sensorState"`
	AgeMinutes     uint16    `json:"sensorAgeMinutes"`
	Age            string    `json:"sensorAge"`
	History        []Reading `json:"historicalReadings"`
}

// ReadingsPayload is broadcast after each poll.
type ReadingsPayload struct {
	SerialNumber string    `json:"serialNumber,omitempty"`
	Readings     []Reading `json:"readings"`
	Latest       *Reading  `json:"latest,omitempty"`
}

// SessionStatusPayload describes the orchestrator state.
type SessionStatusPayload struct {
	SessionID    string   `json:"sessionID"`
	State        string   `json:"state"`
	SerialNumber string   `json:"serialNumber,omitempty"`
	HasKeys      bool     `json:"hasKeys"`
	Peer         string   `json:"peer,omitempty"`
	Readings     int      `json:"readings"`
	Latest       *Reading `json:"latest,omitempty"`
	LastScan     string   `json:"lastScan,omitempty"`
	LastPoll     string   `json:"lastPoll,omitempty"`
}

// ErrorPayload is broadcast when a scan or poll fails.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
