//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/services/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireDesktopSession(t *testing.T) {
	t.Helper()

	if os.Getenv("TEST_DESKTOP_NOTIFY") == "" {
		t.Skip("TEST_DESKTOP_NOTIFY not set")
	}
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("no D-Bus session bus")
	}
}

func TestDesktopNotification_E2E(t *testing.T) {
	requireDesktopSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc := notify.New(testLogger())

	result, err := svc.Send(ctx, models.Notification{
		Job:     "e2e-test",
		Success: true,
		Title:   notify.TitleSuccess,
		Body:    "Job e2e-test: synced 3 item(s)",
	})

	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.NotZero(t, result.ID)
}

func TestDesktopFailureNotification_E2E(t *testing.T) {
	requireDesktopSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc := notify.New(testLogger())

	result, err := svc.Send(ctx, models.Notification{
		Job:      "e2e-test",
		Success:  false,
		ExitCode: 2,
		Title:    notify.TitleFailed,
		Body:     "Job e2e-test failed (exit 2)",
	})

	require.NoError(t, err)
	assert.True(t, result.Sent)
}
