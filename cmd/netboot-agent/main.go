package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EternisAI/netboot/internal/agent"
	"github.com/spf13/cobra"
)

var AppVersion string

var (
	configPath string
	serverURL  string
	dryRun     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "netboot-agent",
	Short: "Fleet machine agent for the netboot server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := InitConfig(configPath); err != nil {
			return err
		}
		if serverURL != "" {
			config.Server.URL = serverURL
		}
		if dryRun {
			config.Agent.DryRun = true
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register if needed, then heartbeat, report stats and execute commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}

		slog.Info("Netboot Agent", "version", AppVersion, "dry_run", config.Agent.DryRun)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this machine and store the issued token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := a.Register(ctx); err != nil {
			return err
		}
		fmt.Printf("Registered as client %s\n", a.ClientID())
		fmt.Printf("State saved to %s\n", config.Agent.StateFile)
		return nil
	},
}

func newAgent() (*agent.Agent, error) {
	return agent.New(agent.Config{
		ServerURL:      config.Server.URL,
		StateFile:      config.Agent.StateFile,
		Interface:      config.Agent.Interface,
		RequestTimeout: config.Agent.Timeout,
		Retry:          config.Agent.Retry,
	}, agent.NewSystemCollector(), agent.SystemExecutor{DryRun: config.Agent.DryRun})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ./application.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Log commands instead of executing them")
	rootCmd.AddCommand(runCmd, registerCmd)
}
