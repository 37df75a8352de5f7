package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/bridge"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mudra",
		Short: "Mudra - temporal hand gesture validation",
		Long: `Mudra walks a user through a list of hand gestures, collects a window of
tracked hand landmarks for each one and asks a classifier whether the
gesture was performed. Results are stored and streamed to the dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default mudra.yaml in . or ~/.mudra)")

	root.AddCommand(
		newRunCmd(opts),
		newBridgeCmd(opts),
		newConfigCmd(opts),
		newLabelsCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mudra %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newLabelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Print the classifier labels in index order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			labels, err := app.ResolveLabels(s, cfg)
			if err != nil {
				return err
			}
			for i, l := range labels.Labels() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, l)
			}
			return nil
		},
	}
}

func newBridgeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serve the trained templates over the classifier bridge",
		Long: `Serve answers newline-delimited JSON classification requests with the
template classifier trained from the local store. Another mudra instance
configured with the bridge backend can use it as its classifier.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Inference.BridgeAddr
			}

			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			return serveBridge(ctx, cfg, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default inference.bridge_addr)")
	return cmd
}

// serveBridge classifies with the stored templates until ctx is cancelled.
func serveBridge(ctx context.Context, cfg *config.Config, addr string) error {
	local := *cfg
	local.Inference.Backend = config.BackendTemplate

	s, err := openStore(&local)
	if err != nil {
		return err
	}
	defer s.Close()

	labels, err := app.ResolveLabels(s, &local)
	if err != nil {
		return err
	}
	engine := inference.NewTemplateEngine(labels)
	engine.SetTemperature(local.Inference.Temperature)
	n, err := app.NewTemplateTrainer(s, engine, local.Features.FeatureDim).LoadTemplates()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	log.Printf("bridge serving %d templates for %d labels on %s", n, labels.Len(), ln.Addr())

	srv := bridge.NewServer(engine, labels, local.Features.MaxLength, local.Features.FeatureDim)
	return srv.Serve(ctx, ln)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.New(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
