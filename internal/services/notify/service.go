// Package notify sends desktop notifications through the freedesktop
// notification service on the session bus.
package notify

import (
	"context"
	"fmt"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// Notification presentation used for every run notification.
const (
	AppName      = "Rclone Sync Helper"
	IconError    = "dialog-error"
	IconSuccess  = "drive-harddisk"
	TitleFailed  = "Rclone Sync Failed"
	TitleSuccess = "Rclone Sync Completed"
)

// Urgency levels of the freedesktop notification hint.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	method     = busName + ".Notify"
)

// Request is a single Notify call.
type Request struct {
	AppName string
	Icon    string
	Summary string
	Body    string
	Urgency byte
	Timeout int32 // milliseconds, -1 lets the server decide
}

// Sender delivers a notification request and returns the server's id.
type Sender interface {
	Send(ctx context.Context, req Request) (uint32, error)
}

// DBusSender sends notifications over the session bus.
type DBusSender struct{}

// Send implements Sender.
func (DBusSender) Send(ctx context.Context, req Request) (uint32, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("connecting to session bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(req.Urgency),
	}

	obj := conn.Object(busName, dbus.ObjectPath(objectPath))
	call := obj.CallWithContext(ctx, method, 0,
		req.AppName, uint32(0), req.Icon, req.Summary, req.Body,
		[]string{}, hints, req.Timeout)
	if call.Err != nil {
		return 0, fmt.Errorf("calling %s: %w", method, call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("reading notification id: %w", err)
	}
	return id, nil
}

// Service defines the interface for desktop notifications.
type Service interface {
	Send(ctx context.Context, n models.Notification) (*models.NotifyResult, error)
}

// Impl implements the Service interface.
type Impl struct {
	sender Sender
	logger zerolog.Logger
}

// New creates a notifier using the session bus.
func New(logger zerolog.Logger) *Impl {
	return NewWithSender(logger, DBusSender{})
}

// NewWithSender creates a notifier with a custom sender (for testing).
func NewWithSender(logger zerolog.Logger, sender Sender) *Impl {
	return &Impl{sender: sender, logger: logger}
}

// Send shows n as a desktop notification. Failures are critical with an
// error icon; successes are normal.
func (s *Impl) Send(ctx context.Context, n models.Notification) (*models.NotifyResult, error) {
	result := &models.NotifyResult{}

	req := Request{
		AppName: AppName,
		Icon:    IconSuccess,
		Summary: n.Title,
		Body:    n.Body,
		Urgency: UrgencyNormal,
		Timeout: -1,
	}
	if !n.Success {
		req.Icon = IconError
		req.Urgency = UrgencyCritical
	}

	id, err := s.sender.Send(ctx, req)
	if err != nil {
		result.Error = err
		return result, nil
	}

	result.Sent = true
	result.ID = id

	s.logger.Debug().
		Str("job", n.Job).
		Uint32("id", id).
		Msg("desktop notification sent")

	return result, nil
}

// ForRun decides whether a finished run deserves a notification and builds
// it. Failures always notify; successes only when items changed.
func ForRun(job string, exitCode int, state *models.SyncState) (models.Notification, bool) {
	n := models.Notification{Job: job, ExitCode: exitCode}

	if exitCode != 0 {
		n.Title = TitleFailed
		n.Body = fmt.Sprintf("Job %s failed (exit %d)", job, exitCode)
		if state != nil && state.LastError != nil {
			n.Body = *state.LastError
		}
		return n, true
	}

	if state == nil || state.LastChangedCount == nil || *state.LastChangedCount == 0 {
		return n, false
	}

	n.Success = true
	n.ChangedCount = *state.LastChangedCount
	n.Title = TitleSuccess
	n.Body = fmt.Sprintf("Job %s: synced %d item(s)", job, n.ChangedCount)
	return n, true
}
