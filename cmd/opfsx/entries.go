package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/spf13/cobra"
)

var rmRecursive bool

func init() {
	rm := newRmCmd()
	rm.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "Delete a directory with everything below it")
	rootCmd.AddCommand(newMkdirCmd(), newTouchCmd(), newCatCmd(), newWriteCmd(), rm)
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <root> <path>",
		Short: "Create a directory and any missing parents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.session.FileSystem().CreateDirectory(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printResult(n, "%s:%s\n", n.Root, n.Path)
			})
		},
	}
}

func newTouchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <root> <path>",
		Short: "Create an empty file and any missing parents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.session.FileSystem().CreateFile(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printResult(n, "%s:%s\n", n.Root, n.Path)
			})
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <root> <path>",
		Short: "Print the content of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				content, err := a.session.FileSystem().ReadFile(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(map[string]string{"root": args[0], "path": args[1], "content": content})
				}
				_, err = io.WriteString(os.Stdout, content)
				return err
			})
		},
	}
}

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <root> <path> [content]",
		Short: "Replace the content of a file, reading stdin when no content is given",
		Long: `The write command replaces the whole content of a file, creating it
and its parents when needed. Readers see either the old or the new content.

Example:
  opfsx write root notes/todo.txt "buy milk"
  echo hello | opfsx write cache1 greeting.txt`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			if len(args) == 3 {
				content = args[2]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(data)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.session.FileSystem().WriteFile(ctx, args[0], args[1], content); err != nil {
					return err
				}
				return printResult(map[string]any{"root": args[0], "path": args[1], "bytes": len(content)},
					"Wrote %d bytes to %s:%s\n", len(content), args[0], strings.TrimPrefix(args[1], "/"))
			})
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <root> <path>",
		Short: "Delete a file, or a directory with --recursive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := opfs.KindFile
			if rmRecursive {
				kind = opfs.KindDirectory
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.session.FileSystem().DeleteEntry(ctx, args[0], args[1], kind); err != nil {
					return err
				}
				return printResult(map[string]string{"root": args[0], "path": args[1], "kind": string(kind)},
					"Deleted %s %s:%s\n", kind, args[0], args[1])
			})
		},
	}
}
