package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdStartAll       CommandType = "start_all"
	CmdStopAll        CommandType = "stop_all"
	CmdCheckNow       CommandType = "check_now"
	CmdStartProduct   CommandType = "start_product"
	CmdStopProduct    CommandType = "stop_product"
	CmdCheckProduct   CommandType = "check_product"
	CmdStartVariant   CommandType = "start_variant"
	CmdStopVariant    CommandType = "stop_variant"
	CmdCheckVariant   CommandType = "check_variant"
	CmdRemoveProduct  CommandType = "remove_product"
	CmdUpdateSettings CommandType = "update_settings"
	CmdClearLogs      CommandType = "clear_logs"
	CmdRotateVPN      CommandType = "rotate_vpn"
	CmdEnrich         CommandType = "enrich"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

// CommandParams addresses a command's target. The settings fields only
// matter for update_settings; zero ints and absent pointers leave the
// product's current values alone.
type CommandParams struct {
	ProductID string `json:"product_id,omitempty"`
	VariantID string `json:"variant_id,omitempty"`

	IntervalSeconds int     `json:"interval_seconds,omitempty"`
	MaxRetries      int     `json:"max_retries,omitempty"`
	AutoStart       *bool   `json:"auto_start,omitempty"`
	CustomUserAgent *string `json:"custom_user_agent,omitempty"`
	Debug           *bool   `json:"debug,omitempty"`
}
