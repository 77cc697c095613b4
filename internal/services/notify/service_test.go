package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	sendFunc func(ctx context.Context, req Request) (uint32, error)
	requests []Request
}

func (m *mockSender) Send(ctx context.Context, req Request) (uint32, error) {
	m.requests = append(m.requests, req)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, req)
	}
	return 7, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestSend_Failure(t *testing.T) {
	sender := &mockSender{}
	svc := NewWithSender(testLogger(), sender)

	result, err := svc.Send(context.Background(), models.Notification{
		Job:   "photos",
		Title: TitleFailed,
		Body:  "Bisync critical error",
	})

	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.Equal(t, uint32(7), result.ID)

	require.Len(t, sender.requests, 1)
	req := sender.requests[0]
	assert.Equal(t, AppName, req.AppName)
	assert.Equal(t, IconError, req.Icon)
	assert.Equal(t, UrgencyCritical, req.Urgency)
	assert.Equal(t, TitleFailed, req.Summary)
	assert.Equal(t, "Bisync critical error", req.Body)
	assert.Equal(t, int32(-1), req.Timeout)
}

func TestSend_Success(t *testing.T) {
	sender := &mockSender{}
	svc := NewWithSender(testLogger(), sender)

	_, err := svc.Send(context.Background(), models.Notification{
		Job:     "photos",
		Success: true,
		Title:   TitleSuccess,
		Body:    "Job photos: synced 3 item(s)",
	})

	require.NoError(t, err)
	require.Len(t, sender.requests, 1)
	assert.Equal(t, IconSuccess, sender.requests[0].Icon)
	assert.Equal(t, UrgencyNormal, sender.requests[0].Urgency)
}

func TestSend_BusError(t *testing.T) {
	sender := &mockSender{
		sendFunc: func(ctx context.Context, req Request) (uint32, error) {
			return 0, errors.New("connecting to session bus: no DBUS_SESSION_BUS_ADDRESS")
		},
	}
	svc := NewWithSender(testLogger(), sender)

	result, err := svc.Send(context.Background(), models.Notification{Job: "photos"})

	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.ErrorContains(t, result.Error, "session bus")
}

func TestForRun(t *testing.T) {
	tests := []struct {
		name      string
		exitCode  int
		state     *models.SyncState
		wantSend  bool
		wantTitle string
		wantBody  string
	}{
		{
			name:      "failure uses last error",
			exitCode:  2,
			state:     &models.SyncState{LastError: strPtr("Bisync aborted")},
			wantSend:  true,
			wantTitle: TitleFailed,
			wantBody:  "Bisync aborted",
		},
		{
			name:      "failure without error text",
			exitCode:  3,
			state:     &models.SyncState{},
			wantSend:  true,
			wantTitle: TitleFailed,
			wantBody:  "Job photos failed (exit 3)",
		},
		{
			name:      "success with changes",
			state:     &models.SyncState{LastChangedCount: intPtr(45)},
			wantSend:  true,
			wantTitle: TitleSuccess,
			wantBody:  "Job photos: synced 45 item(s)",
		},
		{
			name:  "success without changes is silent",
			state: &models.SyncState{LastChangedCount: intPtr(0)},
		},
		{
			name:  "success with unknown count is silent",
			state: &models.SyncState{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, send := ForRun("photos", tt.exitCode, tt.state)
			assert.Equal(t, tt.wantSend, send)
			if !tt.wantSend {
				return
			}
			assert.Equal(t, tt.wantTitle, n.Title)
			assert.Equal(t, tt.wantBody, n.Body)
			assert.Equal(t, tt.exitCode == 0, n.Success)
		})
	}
}
