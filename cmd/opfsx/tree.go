package main

import (
	"context"
	"fmt"
	"os"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/explorer"
	"github.com/spf13/cobra"
)

var treeLocal bool

func init() {
	cmd := newTreeCmd()
	cmd.Flags().BoolVarP(&treeLocal, "local", "l", false, "Include the granted local directory")
	rootCmd.AddCommand(cmd)
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [root...]",
		Short: "Show the tree of some or all roots",
		Long: `The tree command walks the given roots, or every root when none is
given, and prints them as trees.

Example:
  opfsx tree
  opfsx tree root cache1
  opfsx tree --local --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runTree(ctx, a, args)
			})
		},
	}
}

func runTree(ctx context.Context, a *app, roots []string) error {
	var nodes []opfs.Node
	if len(roots) == 0 {
		if treeLocal {
			if err := a.session.RestoreLocal(ctx); err != nil {
				return err
			}
		}
		if err := a.session.Refresh(ctx); err != nil {
			return err
		}
		nodes = a.session.Trees()
	} else {
		for _, root := range roots {
			n, err := a.session.FileSystem().Tree(ctx, root)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
	}
	if jsonOut {
		return printJSON(nodes)
	}
	fmt.Fprintln(os.Stdout, explorer.Render(nodes))
	return nil
}
