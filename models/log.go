package models

import (
	"time"

	"github.com/google/uuid"
)

type LogStatus string

const (
	LogSuccess             LogStatus = "success"
	LogAvailabilityChanged LogStatus = "availability_changed"
	LogAntiBot             LogStatus = "anti_bot"
	LogNetworkError        LogStatus = "network_error"
	LogGenericError        LogStatus = "generic_error"
	LogInstantCheck        LogStatus = "instant_check"
	LogAutoPaused          LogStatus = "auto_paused"
)

// LogEntry is one line of monitoring activity. Entries live in a capped
// newest-first ring kept by the logbook.
type LogEntry struct {
	Time         time.Time `json:"time"`
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	VariantID    uuid.UUID `json:"variant_id"`
	VariantLabel string    `json:"variant_label"`
	Status       LogStatus `json:"status"`
	Message      string    `json:"message"`
	ResponseMS   int64     `json:"response_ms,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
}
