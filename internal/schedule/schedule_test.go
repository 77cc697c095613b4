package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Shorthand(t *testing.T) {
	s, err := Parse("hourly")

	require.NoError(t, err)
	assert.Equal(t, "hourly", s.OnCalendar())
	assert.Equal(t, "hourly", s.Description())

	from := time.Date(2026, 1, 6, 13, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC), s.Next(from))
}

func TestParse_Descriptor(t *testing.T) {
	s, err := Parse("@midnight")

	require.NoError(t, err)
	assert.Equal(t, "daily", s.OnCalendar())
}

func TestParse_CronTranslation(t *testing.T) {
	tests := []struct {
		expr     string
		calendar string
	}{
		{"30 9 * * *", "*-*-* 09:30:00"},
		{"*/15 * * * *", "*-*-* *:00/15:00"},
		{"0 */2 * * *", "*-*-* 00/2:00:00"},
		{"0 3 * * 1-5", "Mon..Fri *-*-* 03:00:00"},
		{"0 3 * * 0,6", "Sun,Sat *-*-* 03:00:00"},
		{"5 4 1 * *", "*-*-1 04:05:00"},
		{"0 0 1 JAN,JUL *", "*-1,7-1 00:00:00"},
		{"0 12 * * MON", "Mon *-*-* 12:00:00"},
		{"0 8-18 * * *", "*-*-* 08..18:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.calendar, s.OnCalendar())
			assert.Contains(t, s.Description(), tt.expr)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"sometimes",
		"61 * * * *",
		"0 3 1 * 1",
		"0 3 * * */2",
		"0 1-5/2 * * *",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.Error(t, err)
		})
	}
}

func TestSchedule_NextCron(t *testing.T) {
	s, err := Parse("30 9 * * *")
	require.NoError(t, err)

	from := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 7, 9, 30, 0, 0, time.UTC), s.Next(from))
}
