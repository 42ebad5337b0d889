package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRootsCmd())
}

func newRootsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "List the default root and all buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, runRoots)
		},
	}
}

func runRoots(ctx context.Context, a *app) error {
	roots, err := a.registry.ListRoots(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(roots)
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tQUOTA\tEXPIRES\tDURABILITY")
	for _, d := range roots {
		quota, expires := "-", "-"
		if d.Quota > 0 {
			quota = fmt.Sprintf("%d", d.Quota)
		}
		if !d.Expires.IsZero() {
			expires = d.Expires.Format(time.RFC3339)
			if d.Expired(now) {
				expires += " (expired)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, quota, expires, d.Durability)
	}
	return w.Flush()
}
