package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// Executor performs the machine-level side of a command.
type Executor interface {
	Reboot(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Launch(ctx context.Context, path string) error
}

// SystemExecutor shells out to the platform tools. With DryRun it only logs.
type SystemExecutor struct {
	DryRun bool
}

func (e SystemExecutor) Reboot(ctx context.Context) error {
	if runtime.GOOS == "windows" {
		return e.run(ctx, "shutdown", "/r", "/t", "5", "/c", "netboot reboot command received")
	}
	return e.run(ctx, "shutdown", "-r", "+1", "netboot reboot command received")
}

func (e SystemExecutor) Shutdown(ctx context.Context) error {
	if runtime.GOOS == "windows" {
		return e.run(ctx, "shutdown", "/s", "/t", "5", "/c", "netboot shutdown command received")
	}
	return e.run(ctx, "shutdown", "-h", "+1", "netboot shutdown command received")
}

// Launch starts path detached; the agent does not wait for it to exit.
func (e SystemExecutor) Launch(_ context.Context, path string) error {
	if e.DryRun {
		slog.Info("Dry run: would launch application", "path", path)
		return nil
	}
	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch %s: %w", path, err)
	}
	go func() { _ = cmd.Wait() }()
	slog.Info("Application launched", "path", path, "pid", cmd.Process.Pid)
	return nil
}

func (e SystemExecutor) run(ctx context.Context, name string, args ...string) error {
	if e.DryRun {
		slog.Info("Dry run: would execute", "command", name, "args", args)
		return nil
	}
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, out)
	}
	return nil
}
