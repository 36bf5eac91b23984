package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	internalhttp "github.com/EternisAI/netboot/internal/api/http"
	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/EternisAI/netboot/internal/api/http/handler"
	"github.com/EternisAI/netboot/internal/auth"
	"github.com/EternisAI/netboot/internal/blobstore"
	"github.com/EternisAI/netboot/internal/boot"
	"github.com/EternisAI/netboot/internal/cert"
	"github.com/EternisAI/netboot/internal/clients"
	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/commands"
	"github.com/EternisAI/netboot/internal/db"
	"github.com/EternisAI/netboot/internal/discovery"
	grpcserver "github.com/EternisAI/netboot/internal/grpc/server"
	"github.com/EternisAI/netboot/internal/images"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/EternisAI/netboot/internal/stats"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/EternisAI/netboot/internal/store/memory"
	"github.com/EternisAI/netboot/internal/store/postgres"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Netboot Server", "version", AppVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st *store.Store
	var healthDB handler.Pinger
	if config.DB.Enabled() {
		pool, err := db.Open(ctx, config.DB)
		if err != nil {
			slog.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		st = postgres.New(pool)
		healthDB = pool
	} else {
		slog.Warn("No database configured, state will not survive a restart")
		st = memory.New()
	}

	blobs, err := blobstore.NewFromConfig(ctx, config.Storage)
	if err != nil {
		slog.Error("Failed to initialize image storage", "error", err)
		os.Exit(1)
	}

	clk := clock.Real{}
	tracker, err := presence.NewTracker(st.Clients, clk, config.Presence)
	if err != nil {
		slog.Error("Invalid presence configuration", "error", err)
		os.Exit(1)
	}
	clientService := clients.NewService(st, clk)
	coordinator := boot.NewCoordinator(clientService, st.Clients, st.Images, tracker, boot.LogTransport{})
	imageService := images.NewService(st.Images, st.Points, blobs, coordinator, clk)

	if config.Auth.JWTSecret == "" {
		slog.Warn("auth.jwt_secret is empty, admin login is disabled")
	}

	services := &internalhttp.Services{
		Clients:     clientService,
		Presence:    tracker,
		Commands:    commands.NewService(st.Commands, st.Clients, clk),
		Stats:       stats.NewService(st.Stats, st.Clients, clk),
		Images:      imageService,
		Coordinator: coordinator,
		Auth:        auth.NewService(config.Auth),
		DB:          healthDB,
		JWTSecret:   config.Auth.JWTSecret,
		BootAPIKey:  config.Http.BootAPIKey,
		AgentConfig: dto.AgentConfig{
			ServerURL:           config.Http.ServerURL,
			AutoLogin:           config.Agent.AutoLogin,
			MonitoringInterval:  int(config.Agent.MonitoringInterval.Seconds()),
			CommandPollInterval: int(config.Agent.CommandPollInterval.Seconds()),
		},
	}

	grpcSrv, err := newGrpcServer()
	if err != nil {
		slog.Error("Failed to configure gRPC server", "error", err)
		os.Exit(1)
	}

	if err := tracker.Start(ctx); err != nil {
		slog.Error("Failed to start presence sweeper", "error", err)
		os.Exit(1)
	}

	var feed *discovery.Feed
	if config.Discovery.Enabled {
		feed, err = newDiscoveryFeed(clientService)
		if err != nil {
			slog.Error("Failed to configure discovery", "error", err)
			os.Exit(1)
		}
		if err := feed.Start(ctx); err != nil {
			slog.Error("Failed to start discovery", "error", err)
			os.Exit(1)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 2)
	if _, err := startServers(httpServer, grpcSrv, errChan); err != nil {
		slog.Error("Failed to start servers", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")
	grpcSrv.SetServing(grpcserver.BootService, false)

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcSrv.StopWithTimeout(shutdownTimeout); err != nil {
			slog.Error("gRPC server shutdown error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.Stop()
		if feed != nil {
			if err := feed.Stop(shutdownTimeout); err != nil {
				slog.Error("Discovery shutdown error", "error", err)
			}
		}
	}()

	wg.Wait()
	slog.Info("Shutdown complete")
}

// startServers binds both ports, serves them in the background and only
// then reports netboot.Boot as SERVING. Serve errors go to errChan.
func startServers(httpServer *http.Server, grpcSrv *grpcserver.Server, errChan chan<- error) (net.Addr, error) {
	httpListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind HTTP port %s: %w", httpServer.Addr, err)
	}
	if err := grpcSrv.Listen(); err != nil {
		_ = httpListener.Close()
		return nil, err
	}

	go func() {
		slog.Info("Starting HTTP server", "address", httpListener.Addr().String())
		if err := httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		if err := grpcSrv.Start(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	grpcSrv.SetServing(grpcserver.BootService, true)
	return httpListener.Addr(), nil
}

func newGrpcServer() (*grpcserver.Server, error) {
	tlsConfig := config.Grpc.TLS
	if tlsConfig.Enabled && config.Grpc.AutoGenerate {
		ips, err := ParseIPs(config.Grpc.IPAddresses)
		if err != nil {
			return nil, err
		}
		err = cert.Ensure(cert.Paths{
			CACert:     tlsConfig.CAFile,
			CAKey:      config.Grpc.CAKeyFile,
			ServerCert: tlsConfig.CertFile,
			ServerKey:  tlsConfig.KeyFile,
		}, ParseCommaSeparated(config.Grpc.DomainNames), ips)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure certificates: %w", err)
		}
	}

	creds, err := tlsConfig.ServerCredentials()
	if err != nil {
		return nil, err
	}
	return grpcserver.NewServer(config.Grpc.Port, creds), nil
}

func newDiscoveryFeed(clientService *clients.Service) (*discovery.Feed, error) {
	path := config.Discovery.ARPTable
	if path == "" {
		path = discovery.DefaultARPTable
	}
	source, err := discovery.NewARPSource(path, config.Discovery.Subnet)
	if err != nil {
		return nil, err
	}

	autoProvision := config.Discovery.AutoProvision
	sink := func(ctx context.Context, obs discovery.Observation) error {
		if !autoProvision {
			slog.Info("Machine observed on network", "hardware_address", obs.HardwareAddress, "ip", obs.NetworkAddress)
			return nil
		}
		created, err := clientService.Provision(ctx, obs.HardwareAddress, obs.NetworkAddress)
		if err != nil {
			return err
		}
		if created {
			slog.Info("Provisioned discovered machine", "hardware_address", obs.HardwareAddress, "ip", obs.NetworkAddress)
		}
		return nil
	}
	return discovery.NewFeed(source, sink, config.Discovery.Interval), nil
}
