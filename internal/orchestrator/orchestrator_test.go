package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelalgo/momentum/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWindow_InWindow(t *testing.T) {
	w := Window{StartHour: 8, StartMinute: 0, EndHour: 9, EndMinute: 25}
	base := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)

	assert.False(t, w.InWindow(base.Add(7*time.Hour+59*time.Minute)))
	assert.True(t, w.InWindow(base.Add(8*time.Hour)))
	assert.True(t, w.InWindow(base.Add(9*time.Hour+24*time.Minute)))
	assert.False(t, w.InWindow(base.Add(9*time.Hour+25*time.Minute)))
}

func TestSupervisor_StartAndStop_RunsChildAndWritesStatus(t *testing.T) {
	store := state.NewStore(t.TempDir())
	sup := NewSupervisor(store, testLogger(), []ServiceSpec{
		{Name: "seller", Priority: 1, Command: []string{"sleep", "5"}},
		{Name: "scanner", Priority: 3, Command: []string{"sleep", "5"}},
	})

	require.NoError(t, sup.Start(context.Background(), time.Now()))

	status, err := sup.Status()
	require.NoError(t, err)
	require.Contains(t, status.Services, "seller")
	require.Contains(t, status.Services, "scanner")
	assert.Equal(t, state.ServiceRunning, status.Services["seller"].State)
	assert.NotZero(t, status.Services["seller"].PID)

	pid, err := store.LoadPID()
	require.NoError(t, err)
	assert.NotZero(t, pid)

	require.NoError(t, sup.Stop(context.Background()))

	status, err = sup.Status()
	require.NoError(t, err)
	assert.Equal(t, state.ServiceStopped, status.Services["seller"].State)
	assert.Equal(t, state.ServiceStopped, status.Services["scanner"].State)

	_, err = store.LoadPID()
	require.NoError(t, err)
}

func TestSupervisor_Start_SkipsServiceOutsideSchedule(t *testing.T) {
	store := state.NewStore(t.TempDir())
	window := &Window{StartHour: 8, StartMinute: 0, EndHour: 9, EndMinute: 25}
	sup := NewSupervisor(store, testLogger(), []ServiceSpec{
		{Name: "premarket", Priority: 5, Command: []string{"sleep", "5"}, Schedule: window},
	})

	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC) // local TZ in this process is UTC in CI
	require.NoError(t, sup.Start(context.Background(), now))

	status, err := sup.Status()
	require.NoError(t, err)
	_, ok := status.Services["premarket"]
	assert.False(t, ok)
}

func TestSupervisor_CrashedServiceIsRestartedByMonitorLoop(t *testing.T) {
	store := state.NewStore(t.TempDir())
	sup := NewSupervisor(store, testLogger(), []ServiceSpec{
		{Name: "flaky", Priority: 1, Command: []string{"true"}}, // exits immediately
	})

	require.NoError(t, sup.Start(context.Background(), time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	sup.MonitorLoop(ctx, 50*time.Millisecond)

	status, err := sup.Status()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, status.Services["flaky"].RestartCount, 1)
}

func TestSupervisor_Stop_StopsServiceWithNoInMemoryHandleViaPersistedPID(t *testing.T) {
	store := state.NewStore(t.TempDir())

	starter := NewSupervisor(store, testLogger(), []ServiceSpec{
		{Name: "seller", Priority: 1, Command: []string{"sleep", "5"}},
	})
	require.NoError(t, starter.Start(context.Background(), time.Now()))

	status, err := starter.Status()
	require.NoError(t, err)
	pid := status.Services["seller"].PID
	require.NotZero(t, pid)

	// A second Supervisor instance, as `orchestrator stop` constructs when
	// invoked from a separate CLI process than the one that ran `start` —
	// it has no entry in its own in-memory processes map for "seller".
	stopper := NewSupervisor(store, testLogger(), []ServiceSpec{
		{Name: "seller", Priority: 1, Command: []string{"sleep", "5"}},
	})
	require.NoError(t, stopper.Stop(context.Background()))

	status, err = stopper.Status()
	require.NoError(t, err)
	assert.Equal(t, state.ServiceStopped, status.Services["seller"].State)
	assert.Zero(t, status.Services["seller"].PID)
	assert.False(t, isProcessAlive(pid))
}

func TestSupervisor_Status_MissingPIDReportsCrashed(t *testing.T) {
	store := state.NewStore(t.TempDir())
	require.NoError(t, store.UpdateServiceStatus("buyer", func(st state.ServiceStatus) state.ServiceStatus {
		st.State = state.ServiceRunning
		st.PID = 1 << 30 // not a real PID
		st.LastHeartbeat = time.Now()
		return st
	}))

	sup := NewSupervisor(store, testLogger(), []ServiceSpec{
		{Name: "buyer", Priority: 2, HeartbeatInterval: time.Second},
	})

	status, err := sup.Status()
	require.NoError(t, err)
	assert.Equal(t, state.ServiceCrashed, status.Services["buyer"].State)
	assert.Zero(t, status.Services["buyer"].PID)
}

func TestSupervisor_Status_StaleHeartbeatReportsStaleThenRecoversToRunning(t *testing.T) {
	store := state.NewStore(t.TempDir())
	require.NoError(t, store.UpdateServiceStatus("monitor", func(st state.ServiceStatus) state.ServiceStatus {
		st.State = state.ServiceRunning
		st.PID = os.Getpid() // this test process is definitely alive
		st.LastHeartbeat = time.Now().Add(-time.Hour)
		return st
	}))

	sup := NewSupervisor(store, testLogger(), []ServiceSpec{
		{Name: "monitor", Priority: 2, HeartbeatInterval: time.Second},
	})

	status, err := sup.Status()
	require.NoError(t, err)
	assert.Equal(t, state.ServiceStale, status.Services["monitor"].State)

	require.NoError(t, store.UpdateServiceStatus("monitor", func(st state.ServiceStatus) state.ServiceStatus {
		st.LastHeartbeat = time.Now()
		return st
	}))

	status, err = sup.Status()
	require.NoError(t, err)
	assert.Equal(t, state.ServiceRunning, status.Services["monitor"].State)
}

func TestRestartBackoff_DoublesUntilCapAndResetsAfterStableWindow(t *testing.T) {
	var b restartBackoff
	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())

	for i := 0; i < 10; i++ {
		b.Next()
	}
	assert.Equal(t, backoffCap, b.Next())

	b.NoteStarted(time.Now().Add(-backoffStableWindow - time.Second))
	b.ResetIfStable(time.Now())
	assert.Equal(t, 1*time.Second, b.Next())
}
