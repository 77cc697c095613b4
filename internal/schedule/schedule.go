// Package schedule translates job schedules into systemd calendar expressions.
//
// A schedule is either a systemd shorthand ("hourly", "daily", ...) or a
// standard 5-field cron expression. Cron expressions are validated with
// robfig/cron and rewritten into OnCalendar syntax.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// shorthands maps systemd calendar shorthands to an equivalent cron expression.
var shorthands = map[string]string{
	"minutely":     "* * * * *",
	"hourly":       "0 * * * *",
	"daily":        "0 0 * * *",
	"weekly":       "0 0 * * 1",
	"monthly":      "0 0 1 * *",
	"quarterly":    "0 0 1 1,4,7,10 *",
	"semiannually": "0 0 1 1,7 *",
	"yearly":       "0 0 1 1 *",
	"annually":     "0 0 1 1 *",
}

var descriptors = map[string]string{
	"@hourly":   "hourly",
	"@daily":    "daily",
	"@midnight": "daily",
	"@weekly":   "weekly",
	"@monthly":  "monthly",
	"@yearly":   "yearly",
	"@annually": "annually",
}

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var monthNames = map[string]string{
	"JAN": "1", "FEB": "2", "MAR": "3", "APR": "4", "MAY": "5", "JUN": "6",
	"JUL": "7", "AUG": "8", "SEP": "9", "OCT": "10", "NOV": "11", "DEC": "12",
}

var dowNames = map[string]string{
	"SUN": "0", "MON": "1", "TUE": "2", "WED": "3", "THU": "4", "FRI": "5", "SAT": "6",
}

// Schedule is a parsed job schedule.
type Schedule struct {
	expr     string
	calendar string
	sched    cron.Schedule
}

// Parse validates expr and prepares its systemd translation.
func Parse(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schedule is empty")
	}

	if short, ok := descriptors[strings.ToLower(expr)]; ok {
		expr = short
	}

	if spec, ok := shorthands[strings.ToLower(expr)]; ok {
		sched, err := cronParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
		}
		return &Schedule{expr: strings.ToLower(expr), calendar: strings.ToLower(expr), sched: sched}, nil
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule %q is neither a systemd shorthand nor a cron expression: %w", expr, err)
	}

	calendar, err := toCalendar(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", expr, err)
	}

	return &Schedule{expr: expr, calendar: calendar, sched: sched}, nil
}

// String returns the schedule as written.
func (s *Schedule) String() string {
	return s.expr
}

// OnCalendar returns the value for a timer's OnCalendar= line.
func (s *Schedule) OnCalendar() string {
	return s.calendar
}

// Description is used in the timer unit's Description= line.
func (s *Schedule) Description() string {
	if _, ok := shorthands[s.expr]; ok {
		return s.expr
	}
	return fmt.Sprintf("on schedule %q", s.expr)
}

// Next returns the first activation strictly after t.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.sched.Next(t)
}

func toCalendar(expr string) (string, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return "", fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	minute, err := convertField(fields[0], 2, nil)
	if err != nil {
		return "", fmt.Errorf("minute: %w", err)
	}
	hour, err := convertField(fields[1], 2, nil)
	if err != nil {
		return "", fmt.Errorf("hour: %w", err)
	}
	dom, err := convertField(fields[2], 0, nil)
	if err != nil {
		return "", fmt.Errorf("day of month: %w", err)
	}
	month, err := convertField(fields[3], 0, monthNames)
	if err != nil {
		return "", fmt.Errorf("month: %w", err)
	}
	dow, err := convertWeekdays(fields[4])
	if err != nil {
		return "", fmt.Errorf("day of week: %w", err)
	}

	// cron ORs a restricted day-of-month with a restricted day-of-week,
	// systemd ANDs them.
	if dom != "*" && dow != "" {
		return "", fmt.Errorf("restricting both day of month and day of week is not supported")
	}

	calendar := fmt.Sprintf("*-%s-%s %s:%s:00", month, dom, hour, minute)
	if dow != "" {
		calendar = dow + " " + calendar
	}
	return calendar, nil
}

// convertField rewrites one numeric cron field into systemd syntax.
func convertField(field string, pad int, names map[string]string) (string, error) {
	if field == "*" || field == "?" {
		return "*", nil
	}

	parts := strings.Split(field, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		base, step, hasStep := strings.Cut(part, "/")
		if hasStep {
			if _, err := strconv.Atoi(step); err != nil {
				return "", fmt.Errorf("invalid step %q", step)
			}
			switch {
			case base == "*":
				base = "0"
				if pad == 0 {
					base = "1"
				}
			case strings.Contains(base, "-"):
				return "", fmt.Errorf("stepped ranges are not supported: %q", part)
			}
			v, err := value(base, pad, names)
			if err != nil {
				return "", err
			}
			out = append(out, v+"/"+step)
			continue
		}

		if lo, hi, isRange := strings.Cut(base, "-"); isRange {
			l, err := value(lo, pad, names)
			if err != nil {
				return "", err
			}
			h, err := value(hi, pad, names)
			if err != nil {
				return "", err
			}
			out = append(out, l+".."+h)
			continue
		}

		v, err := value(base, pad, names)
		if err != nil {
			return "", err
		}
		out = append(out, v)
	}
	return strings.Join(out, ","), nil
}

func value(s string, pad int, names map[string]string) (string, error) {
	if n, ok := names[strings.ToUpper(s)]; ok {
		s = n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("invalid value %q", s)
	}
	if pad > 0 {
		return fmt.Sprintf("%0*d", pad, n), nil
	}
	return strconv.Itoa(n), nil
}

// convertWeekdays returns "" for an unrestricted day of week.
func convertWeekdays(field string) (string, error) {
	if field == "*" || field == "?" {
		return "", nil
	}

	parts := strings.Split(field, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.Contains(part, "/") {
			return "", fmt.Errorf("steps are not supported: %q", part)
		}
		if lo, hi, isRange := strings.Cut(part, "-"); isRange {
			l, err := weekday(lo)
			if err != nil {
				return "", err
			}
			h, err := weekday(hi)
			if err != nil {
				return "", err
			}
			out = append(out, l+".."+h)
			continue
		}
		d, err := weekday(part)
		if err != nil {
			return "", err
		}
		out = append(out, d)
	}
	return strings.Join(out, ","), nil
}

func weekday(s string) (string, error) {
	if n, ok := dowNames[strings.ToUpper(s)]; ok {
		s = n
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 7 {
		return "", fmt.Errorf("invalid weekday %q", s)
	}
	return weekdays[n], nil
}
