package models

import "time"

// Notification is a run outcome to report to the user.
type Notification struct {
	Job          string
	Success      bool
	Title        string
	Body         string
	ChangedCount int
	ExitCode     int
	StartTime    time.Time
	Duration     time.Duration
	LogFile      string
}

// NotifyResult holds the result of delivering a notification.
type NotifyResult struct {
	Sent  bool
	ID    uint32 // desktop notification id, if any
	Error error
}

// TelegramConfig holds the Telegram bot settings of a job.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}
