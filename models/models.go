package models

import "noise-lab/identity"

// Client to server control message on the audio streams.
type ConfigMessage struct {
	Type      string  `json:"type"`
	Intensity float64 `json:"intensity"`
	Jitter    float64 `json:"jitter"`
}

// FrameMessage carries one frame over socket.io as base64 of packed
// little-endian float32 samples.
type FrameMessage struct {
	Audio string `json:"audio"`
}

// MetricsMessage is sent back for every processed frame.
type MetricsMessage struct {
	Type string          `json:"type"`
	Data identity.Result `json:"data"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	MessageTypeConfig  = "config"
	MessageTypeMetrics = "metrics"
	MessageTypeError   = "error"
)

func NewMetricsMessage(res identity.Result) MetricsMessage {
	return MetricsMessage{Type: MessageTypeMetrics, Data: res}
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Message: message}
}

type ApproveResponse struct {
	Status string  `json:"status"`
	NewID  *string `json:"new_id"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type LearningRequest struct {
	Enabled *bool `json:"enabled"`
}

type LearningResponse struct {
	LearningEnabled bool `json:"learning_enabled"`
}

type DescribeResponse struct {
	Identity    identity.Profile `json:"identity"`
	Description string           `json:"description"`
}

type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Streams       int     `json:"streams"`
	Active        int     `json:"active_identities"`
	Pending       int     `json:"pending_identities"`
	Learning      bool    `json:"learning_enabled"`
	Journal       bool    `json:"journal_enabled"`
	Assistant     bool    `json:"assistant_enabled"`
}
