package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/api/http/middleware"
	"github.com/EternisAI/netboot/internal/blobstore"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/commands"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/EternisAI/netboot/internal/store/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stack struct {
	clients  *clients.Service
	presence *presence.Tracker
	commands *commands.Service
	stats    *stats.Service
	images   *images.Service
	coord    *boot.Coordinator
	clock    *clock.Fake
}

func newStack(t *testing.T) *stack {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	tracker, err := presence.NewTracker(st.Clients, clk, presence.Config{HeartbeatInterval: time.Minute, TimeoutMultiplier: 3})
	require.NoError(t, err)

	s := &stack{
		clients:  clients.NewService(st, clk),
		presence: tracker,
		commands: commands.NewService(st.Commands, st.Clients, clk),
		stats:    stats.NewService(st.Stats, st.Clients, clk),
		clock:    clk,
	}
	s.coord = boot.NewCoordinator(s.clients, st.Clients, st.Images, tracker, nil)
	s.images = images.NewService(st.Images, st.Points, blobstore.NewMemoryStore(), s.coord, clk)
	return s
}

func (s *stack) provision(t *testing.T, mac string) *models.Client {
	t.Helper()
	c, err := s.clients.CreateClient(context.Background(), clients.CreateInput{HardwareAddress: mac})
	require.NoError(t, err)
	return c
}

func setupClientRouter(s *stack) *gin.Engine {
	h := NewClientHandler(s.clients, s.presence, s.commands, s.stats, dto.AgentConfig{
		ServerURL:           "http://netboot.local:8080",
		AutoLogin:           true,
		MonitoringInterval:  30,
		CommandPollInterval: 10,
	})
	r := gin.New()
	r.POST("/api/v1/client/register", h.Register)
	authed := r.Group("/api/v1/client", middleware.ClientTokenAuth(s.clients))
	authed.POST("/heartbeat", h.Heartbeat)
	authed.POST("/stats", h.Stats)
	authed.GET("/commands", h.ListCommands)
	authed.POST("/commands/:id/ack", h.AckCommand)
	return r
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r *gin.Engine, mac string) dto.RegisterResponse {
	t.Helper()
	w := doJSON(r, "POST", "/api/v1/client/register", "", dto.RegisterRequest{
		MacAddress: mac,
		Hostname:   "gaming-pc-01",
		IPAddress:  "192.168.1.50",
		Platform:   "windows",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.RegisterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegisterUnprovisioned(t *testing.T) {
	r := setupClientRouter(newStack(t))

	w := doJSON(r, "POST", "/api/v1/client/register", "", dto.RegisterRequest{MacAddress: "aa:bb:cc:00:00:01"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, "POST", "/api/v1/client/register", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterReusesToken(t *testing.T) {
	s := newStack(t)
	c := s.provision(t, "aa:bb:cc:00:00:01")
	r := setupClientRouter(s)

	first := register(t, r, "AA:BB:CC:00:00:01")
	assert.Equal(t, c.ID, first.ClientID)
	assert.NotEmpty(t, first.AuthToken)
	assert.Equal(t, 60, first.Config.HeartbeatInterval)
	assert.Equal(t, 30, first.Config.MonitoringInterval)
	assert.True(t, first.Config.AutoLogin)

	second := register(t, r, "aa:bb:cc:00:00:01")
	assert.Equal(t, first.AuthToken, second.AuthToken)

	got, err := s.clients.GetClient(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.Online)
	assert.Equal(t, "gaming-pc-01", got.SystemInfo["hostname"])
	assert.Equal(t, "windows", got.SystemInfo["platform"])
}

func TestHeartbeat(t *testing.T) {
	s := newStack(t)
	s.provision(t, "aa:bb:cc:00:00:01")
	other := s.provision(t, "aa:bb:cc:00:00:02")
	r := setupClientRouter(s)
	reg := register(t, r, "aa:bb:cc:00:00:01")

	w := doJSON(r, "POST", "/api/v1/client/heartbeat", reg.AuthToken, dto.HeartbeatRequest{
		ClientID: reg.ClientID, MacAddress: "aa:bb:cc:00:00:01", IPAddress: "192.168.1.51",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// wrong hardware address
	w = doJSON(r, "POST", "/api/v1/client/heartbeat", reg.AuthToken, dto.HeartbeatRequest{
		ClientID: reg.ClientID, MacAddress: "aa:bb:cc:00:00:09",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// token of a different client
	w = doJSON(r, "POST", "/api/v1/client/heartbeat", reg.AuthToken, dto.HeartbeatRequest{
		ClientID: other.ID, MacAddress: other.HardwareAddress,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, "POST", "/api/v1/client/heartbeat", "nbt_forged", dto.HeartbeatRequest{
		ClientID: reg.ClientID, MacAddress: "aa:bb:cc:00:00:01",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokedTokenIsRejected(t *testing.T) {
	s := newStack(t)
	s.provision(t, "aa:bb:cc:00:00:01")
	r := setupClientRouter(s)
	reg := register(t, r, "aa:bb:cc:00:00:01")

	require.NoError(t, s.clients.Revoke(context.Background(), reg.ClientID))

	w := doJSON(r, "POST", "/api/v1/client/heartbeat", reg.AuthToken, dto.HeartbeatRequest{
		ClientID: reg.ClientID, MacAddress: "aa:bb:cc:00:00:01",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	fresh := register(t, r, "aa:bb:cc:00:00:01")
	assert.NotEqual(t, reg.AuthToken, fresh.AuthToken)
}

func TestStats(t *testing.T) {
	s := newStack(t)
	s.provision(t, "aa:bb:cc:00:00:01")
	r := setupClientRouter(s)
	reg := register(t, r, "aa:bb:cc:00:00:01")

	w := doJSON(r, "POST", "/api/v1/client/stats", reg.AuthToken, dto.StatsRequest{
		ClientID: reg.ClientID, CPUUsage: 42.5, MemoryUsageMB: 8192, NetworkRxMbps: 1.5, NetworkTxMbps: 0.3,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "POST", "/api/v1/client/stats", reg.AuthToken, dto.StatsRequest{
		ClientID: reg.ClientID, CPUUsage: 250,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	samples, err := s.stats.Recent(context.Background(), reg.ClientID, 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 42.5, samples[0].CPU)
}

func TestCommandsPollAndAck(t *testing.T) {
	s := newStack(t)
	s.provision(t, "aa:bb:cc:00:00:01")
	r := setupClientRouter(s)
	reg := register(t, r, "aa:bb:cc:00:00:01")
	ctx := context.Background()

	launch, err := s.commands.Enqueue(ctx, reg.ClientID, commands.LaunchApplication{Path: `C:\Games\steam.exe`})
	require.NoError(t, err)
	s.clock.Advance(time.Second)
	_, err = s.commands.Enqueue(ctx, reg.ClientID, commands.Reboot{})
	require.NoError(t, err)

	w := doJSON(r, "GET", "/api/v1/client/commands?client_id="+reg.ClientID, reg.AuthToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.CommandsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 2)
	assert.Equal(t, "launch_application", resp.Commands[0].Type)
	assert.JSONEq(t, `{"app_path":"C:\\Games\\steam.exe"}`, string(resp.Commands[0].Data))
	assert.JSONEq(t, `{}`, string(resp.Commands[1].Data))

	ack := dto.AckRequest{ClientID: reg.ClientID}
	w = doJSON(r, "POST", "/api/v1/client/commands/"+launch.ID+"/ack", reg.AuthToken, ack)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, "POST", "/api/v1/client/commands/"+launch.ID+"/ack", reg.AuthToken, ack)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, "POST", "/api/v1/client/commands/missing/ack", reg.AuthToken, ack)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, "GET", "/api/v1/client/commands", reg.AuthToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, "reboot", resp.Commands[0].Type)

	w = doJSON(r, "GET", "/api/v1/client/commands?client_id=someone-else", reg.AuthToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
