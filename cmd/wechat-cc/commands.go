package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/reaper"
	"github.com/ErgoTechKG/wechat-cc/internal/transport"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "wechat-cc",
		Short:         "Chat bridge running a sandboxed coding agent per contact",
		Long:          "wechat-cc receives chat messages, authorizes the sender and runs the coding agent in a per-contact Docker container, replying with its output.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to config.yaml")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newBuildImageCmd(&cfgPath),
		newCleanupCmd(&cfgPath),
		newContainersCmd(&cfgPath),
	)
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bridge (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd.Context(), *cfgPath)
		},
	}
}

func runBridge(parent context.Context, cfgPath string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := wireApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	logger.Info("starting bridge", "transport", a.cfg.Transport.Kind, "image", a.cfg.Docker.Image)

	if err := a.docker.Ping(ctx); err != nil {
		logger.Error("docker ping failed, is Docker running?", "error", err)
		return fmt.Errorf("docker ping: %w", err)
	}
	logger.Info("docker connection OK")

	if err := ensureImage(ctx, a); err != nil {
		logger.Error("sandbox image", "error", err)
		return err
	}
	if err := a.docker.InitNetworks(ctx); err != nil {
		logger.Error("init networks", "error", err)
		return err
	}

	tr, err := newTransport(a.cfg, logger)
	if err != nil {
		return err
	}

	interval := time.Duration(a.cfg.CleanupIntervalMinutes) * time.Minute
	rpr := reaper.New(a.store, a.docker, a.cfg.Session.ExpireMinutes, interval, logger)
	srv := transport.NewServer(tr, a.handle, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rpr.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// An exhausted transport ends the process.
		defer stop()
		return srv.Serve(gctx)
	})

	logger.Info("bridge ready, waiting for messages")
	err = g.Wait()
	logger.Info("bridge stopped")
	return err
}

// ensureImage builds the sandbox image when it is missing and a build
// directory is available.
func ensureImage(ctx context.Context, a *app) error {
	ok, err := a.docker.ImageExists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	dir := a.cfg.Docker.BuildDir
	if _, err := os.Stat(filepath.Join(dir, a.cfg.Docker.Dockerfile)); errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("sandbox image missing and no Dockerfile to build it, containers will fail to start",
			"image", a.cfg.Docker.Image, "build_dir", dir)
		return nil
	}
	a.logger.Info("sandbox image not found, building", "image", a.cfg.Docker.Image)
	return a.docker.BuildImage(ctx, dir, a.cfg.Docker.Dockerfile, os.Stdout)
}

func newBuildImageCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "build-image",
		Short: "Build the sandbox image from the configured Dockerfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.docker.BuildImage(cmd.Context(), a.cfg.Docker.BuildDir, a.cfg.Docker.Dockerfile, cmd.OutOrStdout())
		},
	}
}

func newCleanupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stopped containers and purge expired sessions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rpr := reaper.New(a.store, a.docker, a.cfg.Session.ExpireMinutes, 0, a.logger)
			rpr.SetRemoveStopped(true)
			rpr.Sweep(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "cleanup complete")
			return nil
		},
	}
}

func newContainersCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "containers",
		Short: "List managed containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			containers, err := a.docker.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tIDENTITY\tTIER\tSTATE\tSTATUS\tDATA")
			withContainer := make(map[string]bool, len(containers))
			for _, c := range containers {
				key := docker.Sanitize(c.Identity)
				withContainer[key] = true
				data := "-"
				if a.ws.Exists(key) {
					data = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.Name, c.Identity, c.Tier, c.State, c.Status, data)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			keys, err := a.ws.List()
			if err != nil {
				return err
			}
			var orphans []string
			for _, k := range keys {
				if !withContainer[k] {
					orphans = append(orphans, k)
				}
			}
			if len(orphans) > 0 {
				fmt.Fprintf(out, "\nData without a container: %s\n", strings.Join(orphans, ", "))
			}
			return nil
		},
	}
}
