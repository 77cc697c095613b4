package locks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcs map[int]bool

func (f fakeProcs) Alive(pid int) bool {
	return f[pid]
}

type mockExecutor struct {
	bisyncRunning bool
	calls         int
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.calls++
	if m.bisyncRunning {
		return []byte("1234\n"), nil
	}
	return nil, errors.New("exit status 1")
}

var testNow = time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC)

func newTestService(procs fakeProcs, bisyncRunning bool) (*Impl, afero.Fs) {
	fs := afero.NewMemMapFs()
	svc := NewWithDeps(
		zerolog.New(io.Discard),
		fs,
		procs,
		&mockExecutor{bisyncRunning: bisyncRunning},
		clockwork.NewFakeClockAt(testNow),
		4242,
	)
	return svc, fs
}

func writeFile(t *testing.T, fs afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
}

func TestAcquire_FreshLock(t *testing.T) {
	svc, fs := newTestService(fakeProcs{}, false)

	lock, err := svc.Acquire("/tmp/locks/rclone-sync.lock")

	require.NoError(t, err)
	content, err := afero.ReadFile(fs, "/tmp/locks/rclone-sync.lock")
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(content))

	require.NoError(t, lock.Release())
	exists, _ := afero.Exists(fs, "/tmp/locks/rclone-sync.lock")
	assert.False(t, exists)
	assert.NoError(t, lock.Release())
}

func TestAcquire_HeldByLiveProcess(t *testing.T) {
	svc, fs := newTestService(fakeProcs{777: true}, false)
	writeFile(t, fs, "/tmp/rclone-sync.lock", "777\n", testNow)

	lock, err := svc.Acquire("/tmp/rclone-sync.lock")

	assert.Nil(t, lock)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	var running *AlreadyRunningError
	require.True(t, errors.As(err, &running))
	assert.Equal(t, 777, running.PID)
	assert.Equal(t, "Sync already running (PID: 777)", err.Error())
}

func TestAcquire_ReplacesStaleLock(t *testing.T) {
	svc, fs := newTestService(fakeProcs{}, false)
	writeFile(t, fs, "/tmp/rclone-sync.lock", "777\n", testNow)

	lock, err := svc.Acquire("/tmp/rclone-sync.lock")

	require.NoError(t, err)
	assert.NotNil(t, lock)
	content, _ := afero.ReadFile(fs, "/tmp/rclone-sync.lock")
	assert.Equal(t, "4242\n", string(content))
}

func TestAcquire_ReplacesGarbageLock(t *testing.T) {
	svc, fs := newTestService(fakeProcs{}, false)
	writeFile(t, fs, "/tmp/rclone-sync.lock", "not a pid", testNow)

	_, err := svc.Acquire("/tmp/rclone-sync.lock")

	assert.NoError(t, err)
}

func TestDetectRunning(t *testing.T) {
	svc, fs := newTestService(fakeProcs{777: true}, false)

	_, running := svc.DetectRunning("/tmp/rclone-sync.lock")
	assert.False(t, running)

	started := testNow.Add(-3 * time.Minute)
	writeFile(t, fs, "/tmp/rclone-sync.lock", "777\n", started)
	info, running := svc.DetectRunning("/tmp/rclone-sync.lock")
	require.True(t, running)
	assert.Equal(t, 777, info.PID)
	assert.True(t, info.StartedAt.Equal(started))
}

func TestDetectRunning_RemovesDeadLock(t *testing.T) {
	svc, fs := newTestService(fakeProcs{}, false)
	writeFile(t, fs, "/tmp/rclone-sync.lock", "777\n", testNow)

	_, running := svc.DetectRunning("/tmp/rclone-sync.lock")

	assert.False(t, running)
	exists, _ := afero.Exists(fs, "/tmp/rclone-sync.lock")
	assert.False(t, exists)
}

const bisyncDir = "/home/alice/.cache/rclone/bisync"

func TestCleanBisyncLocks_NoBisyncRunning_RemovesAll(t *testing.T) {
	svc, fs := newTestService(fakeProcs{777: true}, false)
	writeFile(t, fs, bisyncDir+"/a.lck", "777\n", testNow)
	writeFile(t, fs, bisyncDir+"/b.lck", "", testNow)
	writeFile(t, fs, bisyncDir+"/a.path1.lst", "", testNow)

	removed, err := svc.CleanBisyncLocks(context.Background(), bisyncDir)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bisyncDir + "/a.lck", bisyncDir + "/b.lck"}, removed)
	exists, _ := afero.Exists(fs, bisyncDir+"/a.path1.lst")
	assert.True(t, exists)
}

func TestCleanBisyncLocks_BisyncRunning_RemovesOnlyStale(t *testing.T) {
	svc, fs := newTestService(fakeProcs{777: true}, true)
	writeFile(t, fs, bisyncDir+"/live.lck", "777\n", testNow)
	writeFile(t, fs, bisyncDir+"/dead.lck", "888\n", testNow)
	writeFile(t, fs, bisyncDir+"/old.lck", "", testNow.Add(-2*time.Hour))
	writeFile(t, fs, bisyncDir+"/young.lck", "", testNow.Add(-10*time.Minute))

	removed, err := svc.CleanBisyncLocks(context.Background(), bisyncDir)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bisyncDir + "/dead.lck", bisyncDir + "/old.lck"}, removed)
}

func TestCleanBisyncLocks_MissingDir(t *testing.T) {
	svc, _ := newTestService(fakeProcs{}, false)

	removed, err := svc.CleanBisyncLocks(context.Background(), bisyncDir)

	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRemoveStaleLockFile(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		age           time.Duration
		bisyncRunning bool
		want          bool
	}{
		{name: "dead pid", content: "888\n", want: true},
		{name: "live pid", content: "777\n", want: false},
		{name: "no pid, old, idle", content: "", age: 2 * time.Hour, want: true},
		{name: "no pid, young", content: "", age: 5 * time.Minute, want: false},
		{name: "no pid, old, bisync running", content: "", age: 2 * time.Hour, bisyncRunning: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, fs := newTestService(fakeProcs{777: true}, tt.bisyncRunning)
			path := bisyncDir + "/job.lck"
			writeFile(t, fs, path, tt.content, testNow.Add(-tt.age))

			removed, err := svc.RemoveStaleLockFile(context.Background(), path)

			require.NoError(t, err)
			assert.Equal(t, tt.want, removed)
			exists, _ := afero.Exists(fs, path)
			assert.Equal(t, !tt.want, exists)
		})
	}
}

func TestRemoveStaleLockFile_Missing(t *testing.T) {
	svc, _ := newTestService(fakeProcs{}, false)

	removed, err := svc.RemoveStaleLockFile(context.Background(), "/nope.lck")

	assert.NoError(t, err)
	assert.False(t, removed)
}

func TestDetectPriorLockFile(t *testing.T) {
	stderr := "2026/01/06 13:00:01 ERROR : Bisync critical error: prior lock file found: /home/alice/.cache/rclone/bisync/a..b.lck\n"

	assert.Equal(t, "/home/alice/.cache/rclone/bisync/a..b.lck", DetectPriorLockFile("", stderr))
	assert.Equal(t, "", DetectPriorLockFile("all good", "no locks"))
	assert.Equal(t, "", DetectPriorLockFile("prior lock file found:   ", ""))
}
