package status

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPreviewLines is how many trailing output lines the state keeps.
const MaxPreviewLines = 6

// PreviewLines returns the last MaxPreviewLines non-blank lines of stdout
// followed by stderr, trimmed.
func PreviewLines(stdout, stderr string) []string {
	lines := make([]string, 0, MaxPreviewLines)
	for _, line := range outputLines(stdout, stderr) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(lines) == MaxPreviewLines {
			lines = lines[1:]
		}
		lines = append(lines, trimmed)
	}
	return lines
}

// ErrorSummary prefers the last stderr line and falls back to the exit code.
func ErrorSummary(stderr string, exitCode int) *string {
	if trimmed := strings.TrimSpace(stderr); trimmed != "" {
		lines := strings.Split(trimmed, "\n")
		last := strings.TrimSpace(lines[len(lines)-1])
		return &last
	}
	if exitCode != 0 {
		msg := fmt.Sprintf("Exited with code %d", exitCode)
		return &msg
	}
	return nil
}

// RemoteSummary returns the first output line that mentions the remote side.
func RemoteSummary(stdout, stderr string) *string {
	for _, line := range outputLines(stdout, stderr) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, kw := range []string{"remote", "drive", "gdrive", "sync"} {
			if strings.Contains(lower, kw) {
				return &trimmed
			}
		}
	}
	return nil
}

// ChangedCount extracts how many items a run changed. Per-pair "PathN: X
// changes:" counters are summed when present; otherwise the Transferred and
// Copied totals are used.
func ChangedCount(stdout, stderr string) *int {
	combined := stdout + "\n" + stderr

	if total, ok := sumPathChanges(combined); ok {
		return &total
	}

	transferred, okT := lastCountAfterLabel(combined, "Transferred:")
	copied, okC := lastCountAfterLabel(combined, "Copied:")
	switch {
	case okT && okC:
		sum := transferred + copied
		return &sum
	case okT:
		return &transferred
	case okC:
		return &copied
	default:
		return nil
	}
}

// sumPathChanges sums lines like
// "INFO  : Path1:   40 changes:    4 new,   36 newer,    0 older,    0 deleted".
func sumPathChanges(text string) (int, bool) {
	total := 0
	seen := false

	for _, line := range strings.Split(text, "\n") {
		for _, label := range []string{"Path1:", "Path2:"} {
			pos := strings.Index(line, label)
			if pos < 0 {
				continue
			}
			fields := strings.Fields(line[pos+len(label):])
			if len(fields) < 2 || !strings.HasPrefix(fields[1], "changes") {
				continue
			}
			n, err := strconv.Atoi(fields[0])
			if err != nil || n < 0 {
				continue
			}
			total += n
			seen = true
		}
	}
	return total, seen
}

// lastCountAfterLabel reads the total Y from "Label: X / Y, P%" lines,
// preferring the last line at 100%.
func lastCountAfterLabel(text, label string) (int, bool) {
	var last100, lastAny int
	var has100, hasAny bool

	for _, line := range strings.Split(text, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), label)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		_, afterSlash, ok := strings.Cut(rest, " / ")
		if !ok {
			continue
		}
		numStr, _, ok := strings.Cut(afterSlash, ",")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(numStr))
		if err != nil || n < 0 {
			continue
		}
		if strings.Contains(rest, "100%") {
			last100, has100 = n, true
		} else {
			lastAny, hasAny = n, true
		}
	}

	if has100 {
		return last100, true
	}
	return lastAny, hasAny
}

func outputLines(stdout, stderr string) []string {
	lines := strings.Split(stdout, "\n")
	return append(lines, strings.Split(stderr, "\n")...)
}
