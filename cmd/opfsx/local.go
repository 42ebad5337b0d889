package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sashapodgoreanu/opfs-poc/localdir"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Grant, inspect or forget access to a local directory",
	}
	cmd.AddCommand(newLocalGrantCmd(), newLocalForgetCmd(), newLocalStatusCmd())
	rootCmd.AddCommand(cmd)
}

func newLocalGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant [dir]",
		Short: "Grant access to a local directory, asking for it when not given",
		Long: `The grant command remembers a local directory as the "local" root.
Access is checked again every time the directory is used.

Example:
  opfsx local grant ~/notes
  opfsx tree local`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var picker localdir.Picker = localdir.PromptPicker{In: cmd.InOrStdin(), Out: cmd.OutOrStderr()}
			if len(args) == 1 {
				picker = localdir.PathPicker(args[0])
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.local.Grant(ctx, picker); err != nil {
					return err
				}
				g, err := a.local.Status(ctx)
				if err != nil {
					return err
				}
				return printResult(g, "Granted %s\n", g.Path)
			})
		},
	}
}

func newLocalForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Forget the granted local directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.local.Forget(ctx); err != nil {
					return err
				}
				return printResult(map[string]bool{"forgotten": true}, "Local directory forgotten\n")
			})
		},
	}
}

func newLocalStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the granted local directory and whether it is still accessible",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				g, err := a.local.Status(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(g)
				}
				state := "accessible"
				if !g.Valid {
					state = "not accessible, grant it again"
				}
				fmt.Fprintf(os.Stdout, "%s (granted %s, %s)\n", g.Path, g.GrantedAt.Format("2006-01-02 15:04"), state)
				return nil
			})
		},
	}
}
