package domain

import "time"

// Default generation parameters.
const (
	DefaultMaxOutputTokens = 1000
	DefaultTemperature     = 0.1
)

// GenerationRequest is what the workflow sends to a text-generation provider.
type GenerationRequest struct {
	Prompt           string  `json:"prompt"`
	ReferenceContext string  `json:"reference_context"`
	MaxOutputTokens  int     `json:"max_output_tokens"`
	Temperature      float64 `json:"temperature"`
}

// EmailRequest is the dispatch payload for a newsletter announcement.
// Field names match the email service's wire contract.
type EmailRequest struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"des"`
	Category    Category `json:"subs"`
	Emails      []string `json:"emails"`
}

// NotificationLevel classifies a user-visible notification.
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyError   NotificationLevel = "error"
	NotifyInfo    NotificationLevel = "info"
)

// Notification is a toast-style message surfaced to the editor.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}
