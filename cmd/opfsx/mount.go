package main

import (
	"context"
	"os/exec"

	"github.com/sashapodgoreanu/opfs-poc/internal/util"
	"github.com/sashapodgoreanu/opfs-poc/server"
	"github.com/spf13/cobra"
)

var (
	mountUmount      bool
	mountMetricsAddr string
	mountNoSweep     bool
)

func init() {
	cmd := newMountCmd()
	cmd.Flags().BoolVarP(&mountUmount, "umount", "u", false,
		"Unmount the mountpoint first if needed. Useful for debuggers that don't exit properly.")
	cmd.Flags().StringVar(&mountMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while mounted")
	cmd.Flags().BoolVar(&mountNoSweep, "no-sweep", false, "Do not reclaim expired buckets while mounted")
	rootCmd.AddCommand(cmd)
}

func newMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <root> <mountpoint>",
		Short: "Mount a root as a FUSE filesystem until interrupted",
		Long: `The mount command exposes one root through FUSE. Files written through
the mount are committed when they are closed.

Example:
  opfsx mount root /mnt/opfs
  opfsx mount cache1 /mnt/cache --metrics-addr :9100`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = mountMetricsAddr
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runMount(ctx, a, args[0], args[1])
			})
		},
	}
}

func runMount(ctx context.Context, a *app, root, mnt string) error {
	logger := util.GetLogger("main")

	// fail early on unknown roots
	if _, err := a.session.FileSystem().Stat(ctx, root, ""); err != nil {
		return err
	}
	if mountUmount {
		// we ignore error here if not already mounted
		exec.Command("fusermount", "-u", mnt).Run() // nolint:errcheck
	}

	if !mountNoSweep {
		stop, err := a.registry.StartSweeper(cfg.SweepSchedule)
		if err != nil {
			return err
		}
		defer stop()
	}

	srv := server.New(cfg, a.session.FileSystem(), root)
	if err := srv.Serve(mnt); err != nil {
		return err
	}

	unmounted := make(chan struct{})
	go func() {
		srv.Wait()
		close(unmounted)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Received signal, unmounting filesystem")
		if err := srv.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
			return err
		}
		<-unmounted
	case <-unmounted:
		logger.Info().Msg("Filesystem unmounted externally")
	}
	logger.Info().Msg("Filesystem unmounted successfully")
	return nil
}
