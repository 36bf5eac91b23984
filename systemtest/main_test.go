package systemtest

import (
	"context"
	"os"
	"testing"
	"time"

	internalhttp "github.com/EternisAI/netboot/internal/api/http"
	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/api/http/handler"
	"github.com/EternisAI/netboot/internal/auth"
	"github.com/EternisAI/netboot/internal/blobstore"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/commands"
	"github.com/EternisAI/netboot/internal/db"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/EternisAI/netboot/internal/store/memory"
	"github.com/EternisAI/netboot/internal/store/postgres"
	pgcontainer "github.com/EternisAI/netboot/systemtest/postgres"
	"github.com/EternisAI/netboot/systemtest/tests"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret  = "systemtest-secret"
	bootAPIKey = "systemtest-boot-key"
	// bcrypt of "changeme"
	adminHash = "$2a$10$uejoNCSLZ9YkKOZriLlSGeg0pm/nuGVS3nRuSPyYuk/Z7HJHKBhGO"
)

// newStore runs against a throwaway PostgreSQL container when
// NETBOOT_SYSTEMTEST_POSTGRES is set and the in-memory store otherwise.
func newStore(t *testing.T) (*store.Store, handler.Pinger) {
	t.Helper()
	if os.Getenv("NETBOOT_SYSTEMTEST_POSTGRES") == "" {
		return memory.New(), nil
	}

	ctx := context.Background()
	container, url, err := pgcontainer.StartPostgres(ctx, "netboot", "netboot", "netboot")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgcontainer.TerminatePostgres(context.Background(), container) })

	pool, err := db.Open(ctx, db.Config{Url: url})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return postgres.New(pool), pool
}

func TestSystemIntegration(t *testing.T) {
	gin.SetMode(gin.TestMode)

	st, pinger := newStore(t)
	clk := clock.Real{}
	tracker, err := presence.NewTracker(st.Clients, clk, presence.Config{HeartbeatInterval: time.Minute})
	require.NoError(t, err)
	clientService := clients.NewService(st, clk)
	coordinator := boot.NewCoordinator(clientService, st.Clients, st.Images, tracker, nil)

	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Clients:     clientService,
		Presence:    tracker,
		Commands:    commands.NewService(st.Commands, st.Clients, clk),
		Stats:       stats.NewService(st.Stats, st.Clients, clk),
		Images:      images.NewService(st.Images, st.Points, blobstore.NewMemoryStore(), coordinator, clk),
		Coordinator: coordinator,
		Auth: auth.NewService(auth.Config{
			JWTSecret:         jwtSecret,
			AdminUsername:     "admin",
			AdminPasswordHash: adminHash,
		}),
		DB:          pinger,
		JWTSecret:   jwtSecret,
		BootAPIKey:  bootAPIKey,
		AgentConfig: dto.AgentConfig{AutoLogin: true, MonitoringInterval: 30, CommandPollInterval: 10},
	})

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, engine) })
	t.Run("Login", func(t *testing.T) { tests.TestLogin(t, engine, jwtSecret) })
	t.Run("FleetLifecycle", func(t *testing.T) { tests.TestFleetLifecycle(t, engine, bootAPIKey) })
}
