package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/tray"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var withTray bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracker, the validation session and the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tray") {
				cfg.Tray = withTray
			}

			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().BoolVar(&withTray, "tray", false, "show the system tray menu")
	return cmd
}

func notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	webDir := findWebDir(cfg.DataDir)
	if webDir != "" {
		log.Printf("serving static files from %s", webDir)
	}

	a, err := app.New(ctx, cfg, app.Options{Version: version, StaticDir: webDir})
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.Tray {
		return a.Run(ctx)
	}
	return runWithTray(ctx, a, dashboardURL(cfg.ServerAddr))
}

// runWithTray runs the app in the background while the tray owns the main
// goroutine, which the platform tray APIs require.
func runWithTray(ctx context.Context, a *app.App, dashboard string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := tray.New()
	a.Subscribe(t)
	t.OnAction(func(action tray.Action) {
		if err := control(ctx, a.Runner(), action); err != nil {
			log.Printf("tray %s: %v", action, err)
		}
	})
	t.OnDashboard(func() { openBrowser(dashboard) })
	t.OnQuit(cancel)

	errc := make(chan error, 1)
	go func() {
		errc <- a.Run(ctx)
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-errc
}

// control applies a tray action to the session.
func control(ctx context.Context, c api.Controller, action tray.Action) error {
	switch action {
	case tray.ActionStart:
		return c.Start(ctx)
	case tray.ActionStop:
		return c.Stop(ctx, "stopped from tray")
	case tray.ActionRestart:
		return c.Restart(ctx)
	case tray.ActionSkip:
		_, err := c.Skip(ctx)
		return err
	}
	return fmt.Errorf("unknown action %q", action)
}

// dashboardURL turns a listen address into a URL a browser can open.
func dashboardURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and web under the data directory.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	if dataDir == "" {
		return ""
	}
	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("open dashboard: %v", err)
	}
}
