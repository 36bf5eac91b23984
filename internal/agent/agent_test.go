package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	internalhttp "github.com/EternisAI/netboot/internal/api/http"
	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/auth"
	"github.com/EternisAI/netboot/internal/blobstore"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/commands"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/EternisAI/netboot/internal/store/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Reboot(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockExecutor) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockExecutor) Launch(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

type fakeCollector struct {
	identity Identity
	sample   Sample
}

func (f *fakeCollector) Identity(context.Context, string) (*Identity, error) {
	id := f.identity
	return &id, nil
}

func (f *fakeCollector) Sample(context.Context) (Sample, error) {
	return f.sample, nil
}

type fleet struct {
	server   *httptest.Server
	clients  *clients.Service
	commands *commands.Service
	stats    *stats.Service
	tracker  *presence.Tracker
}

func startFleet(t *testing.T) *fleet {
	t.Helper()
	st := memory.New()
	clk := clock.Real{}
	tracker, err := presence.NewTracker(st.Clients, clk, presence.Config{HeartbeatInterval: 30 * time.Second})
	require.NoError(t, err)

	f := &fleet{
		clients:  clients.NewService(st, clk),
		commands: commands.NewService(st.Commands, st.Clients, clk),
		stats:    stats.NewService(st.Stats, st.Clients, clk),
		tracker:  tracker,
	}
	coord := boot.NewCoordinator(f.clients, st.Clients, st.Images, tracker, nil)

	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Clients:     f.clients,
		Presence:    tracker,
		Commands:    f.commands,
		Stats:       f.stats,
		Images:      images.NewService(st.Images, st.Points, blobstore.NewMemoryStore(), coord, clk),
		Coordinator: coord,
		Auth:        auth.NewService(auth.Config{}),
		AgentConfig: dto.AgentConfig{AutoLogin: true, MonitoringInterval: 15, CommandPollInterval: 5},
	})
	f.server = httptest.NewServer(engine)
	t.Cleanup(f.server.Close)
	return f
}

func newTestAgent(t *testing.T, f *fleet, exec Executor) (*Agent, string) {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "state.yaml")
	a, err := New(Config{
		ServerURL: f.server.URL,
		StateFile: statePath,
		Retry:     RetryConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, MaxRetries: 2},
	}, &fakeCollector{
		identity: Identity{
			HardwareAddress: "aa:bb:cc:dd:ee:01",
			NetworkAddress:  "192.168.1.50",
			Hostname:        "seat-01",
			Platform:        "windows",
			Info:            map[string]string{"cpu_model": "Ryzen 7"},
		},
		sample: Sample{CPUPercent: 12.5, MemoryUsedMB: 4096, NetworkRxMbps: 3.2, NetworkTxMbps: 0.4},
	}, exec)
	require.NoError(t, err)
	return a, statePath
}

func TestRegisterPersistsState(t *testing.T) {
	f := startFleet(t)
	a, statePath := newTestAgent(t, f, &MockExecutor{})
	ctx := context.Background()

	err := a.Register(ctx)
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)

	_, err = f.clients.CreateClient(ctx, clients.CreateInput{HardwareAddress: "aa:bb:cc:dd:ee:01"})
	require.NoError(t, err)
	require.NoError(t, a.Register(ctx))

	state, err := LoadState(statePath)
	require.NoError(t, err)
	assert.Equal(t, a.ClientID(), state.ClientID)
	assert.NotEmpty(t, state.AuthToken)
	assert.Equal(t, 30, state.Settings.HeartbeatInterval)
	assert.Equal(t, 15, state.Settings.MonitoringInterval)
	assert.True(t, state.Settings.AutoLogin)

	client, err := f.clients.GetClient(ctx, state.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "seat-01", client.SystemInfo["hostname"])
	assert.Equal(t, "Ryzen 7", client.SystemInfo["cpu_model"])
}

func TestHeartbeatAndStats(t *testing.T) {
	f := startFleet(t)
	ctx := context.Background()
	_, err := f.clients.CreateClient(ctx, clients.CreateInput{HardwareAddress: "aa:bb:cc:dd:ee:01"})
	require.NoError(t, err)

	a, _ := newTestAgent(t, f, &MockExecutor{})
	require.NoError(t, a.Register(ctx))
	require.NoError(t, a.Heartbeat(ctx))
	require.NoError(t, a.ReportStats(ctx))

	online, err := f.tracker.IsOnline(ctx, a.ClientID())
	require.NoError(t, err)
	assert.True(t, online)

	samples, err := f.stats.Recent(ctx, a.ClientID(), 5)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 12.5, samples[0].CPU)
	assert.Equal(t, 3.2, samples[0].RxMbps)
}

func TestReRegistersAfterRevoke(t *testing.T) {
	f := startFleet(t)
	ctx := context.Background()
	_, err := f.clients.CreateClient(ctx, clients.CreateInput{HardwareAddress: "aa:bb:cc:dd:ee:01"})
	require.NoError(t, err)

	a, statePath := newTestAgent(t, f, &MockExecutor{})
	require.NoError(t, a.Register(ctx))
	before, err := LoadState(statePath)
	require.NoError(t, err)

	require.NoError(t, f.clients.Revoke(ctx, a.ClientID()))
	require.NoError(t, a.Heartbeat(ctx))

	after, err := LoadState(statePath)
	require.NoError(t, err)
	assert.NotEqual(t, before.AuthToken, after.AuthToken)
}

func TestPollCommandsExecutesOnceAndAcks(t *testing.T) {
	f := startFleet(t)
	ctx := context.Background()
	_, err := f.clients.CreateClient(ctx, clients.CreateInput{HardwareAddress: "aa:bb:cc:dd:ee:01"})
	require.NoError(t, err)

	exec := &MockExecutor{}
	exec.On("Launch", mock.Anything, `C:\Games\steam.exe`).Return(nil).Once()
	exec.On("Reboot", mock.Anything).Return(nil).Once()

	a, statePath := newTestAgent(t, f, exec)
	require.NoError(t, a.Register(ctx))

	_, err = f.commands.Enqueue(ctx, a.ClientID(), commands.LaunchApplication{Path: `C:\Games\steam.exe`})
	require.NoError(t, err)
	_, err = f.commands.Enqueue(ctx, a.ClientID(), commands.Reboot{})
	require.NoError(t, err)

	n, err := a.PollCommands(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	exec.AssertExpectations(t)

	pending, err := f.commands.ListPending(ctx, a.ClientID())
	require.NoError(t, err)
	assert.Empty(t, pending)

	state, err := LoadState(statePath)
	require.NoError(t, err)
	assert.Len(t, state.Executed, 2)

	n, err = a.PollCommands(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPollCommandsRetriesFailedExecution(t *testing.T) {
	f := startFleet(t)
	ctx := context.Background()
	_, err := f.clients.CreateClient(ctx, clients.CreateInput{HardwareAddress: "aa:bb:cc:dd:ee:01"})
	require.NoError(t, err)

	exec := &MockExecutor{}
	exec.On("Shutdown", mock.Anything).Return(assert.AnError).Once()
	exec.On("Shutdown", mock.Anything).Return(nil).Once()

	a, _ := newTestAgent(t, f, exec)
	require.NoError(t, a.Register(ctx))
	_, err = f.commands.Enqueue(ctx, a.ClientID(), commands.Shutdown{})
	require.NoError(t, err)

	n, err := a.PollCommands(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := f.commands.ListPending(ctx, a.ClientID())
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	n, err = a.PollCommands(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	exec.AssertExpectations(t)
}

func TestUpdateConfigurationPersists(t *testing.T) {
	f := startFleet(t)
	ctx := context.Background()
	_, err := f.clients.CreateClient(ctx, clients.CreateInput{HardwareAddress: "aa:bb:cc:dd:ee:01"})
	require.NoError(t, err)

	a, statePath := newTestAgent(t, f, &MockExecutor{})
	require.NoError(t, a.Register(ctx))

	heartbeat, autoLogin := 20, false
	_, err = f.commands.Enqueue(ctx, a.ClientID(), commands.UpdateConfiguration{
		HeartbeatInterval: &heartbeat,
		AutoLogin:         &autoLogin,
	})
	require.NoError(t, err)

	n, err := a.PollCommands(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	state, err := LoadState(statePath)
	require.NoError(t, err)
	assert.Equal(t, 20, state.Settings.HeartbeatInterval)
	assert.False(t, state.Settings.AutoLogin)
	assert.Equal(t, 15, state.Settings.MonitoringInterval)

	// a restarted agent keeps the pushed settings
	restarted, err := New(Config{ServerURL: f.server.URL, StateFile: statePath}, &fakeCollector{}, &MockExecutor{})
	require.NoError(t, err)
	assert.Equal(t, 20, restarted.Settings().HeartbeatInterval)
	assert.Equal(t, a.ClientID(), restarted.ClientID())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := startFleet(t)
	_, err := f.clients.CreateClient(context.Background(), clients.CreateInput{HardwareAddress: "aa:bb:cc:dd:ee:01"})
	require.NoError(t, err)

	a, _ := newTestAgent(t, f, &MockExecutor{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		id := a.ClientID()
		if id == "" {
			return false
		}
		online, err := f.tracker.IsOnline(context.Background(), id)
		return err == nil && online
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
