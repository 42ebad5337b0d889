package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/explorer"
	"github.com/sashapodgoreanu/opfs-poc/localdir"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newShellCmd())
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse and edit roots interactively",
		Long: `The shell command starts an interactive session with a tree view, a
single file editor and a status line. Type "help" for the commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runShell(ctx, a.session, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

type shellCmd struct {
	usage string
	args  int // minimum number of arguments
	run   func(ctx context.Context, s *explorer.Session, out io.Writer, args []string, rest string) error
}

var shellCmds = map[string]shellCmd{
	"tree": {"tree [root]", 0, func(ctx context.Context, s *explorer.Session, out io.Writer, args []string, _ string) error {
		nodes := s.Trees()
		if len(args) > 0 {
			nodes = slices.DeleteFunc(nodes, func(n opfs.Node) bool { return n.Root != args[0] })
		}
		fmt.Fprintln(out, explorer.Render(nodes))
		return nil
	}},
	"refresh": {"refresh", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, _ string) error {
		return s.Refresh(ctx)
	}},
	"touch": {"touch <root> <path>", 2, func(ctx context.Context, s *explorer.Session, _ io.Writer, args []string, _ string) error {
		return s.CreateFile(ctx, args[0], args[1])
	}},
	"mkdir": {"mkdir <root> <path>", 2, func(ctx context.Context, s *explorer.Session, _ io.Writer, args []string, _ string) error {
		return s.CreateDirectory(ctx, args[0], args[1])
	}},
	"rm": {"rm <root> <path>", 2, func(ctx context.Context, s *explorer.Session, _ io.Writer, args []string, _ string) error {
		return s.Delete(ctx, args[0], args[1], opfs.KindFile)
	}},
	"rmdir": {"rmdir <root> <path>", 2, func(ctx context.Context, s *explorer.Session, _ io.Writer, args []string, _ string) error {
		return s.Delete(ctx, args[0], args[1], opfs.KindDirectory)
	}},
	"open": {"open <root> <path>", 2, func(ctx context.Context, s *explorer.Session, out io.Writer, args []string, _ string) error {
		if err := s.Open(ctx, args[0], args[1]); err != nil {
			return err
		}
		printEditor(out, s.Editor())
		return nil
	}},
	"show": {"show", 0, func(ctx context.Context, s *explorer.Session, out io.Writer, _ []string, _ string) error {
		printEditor(out, s.Editor())
		return nil
	}},
	"edit": {"edit <text>  (\\n for newlines)", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, rest string) error {
		return s.Edit(unescape(rest))
	}},
	"append": {"append <text>", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, rest string) error {
		return s.Edit(s.Editor().Text() + unescape(rest))
	}},
	"save": {"save", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, _ string) error {
		return s.Save(ctx)
	}},
	"close": {"close", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, _ string) error {
		s.Close()
		return nil
	}},
	"mkbucket": {"mkbucket <name> [quota] [expires-in]", 1, func(ctx context.Context, s *explorer.Session, _ io.Writer, args []string, _ string) error {
		var opts opfs.RootOptions
		if len(args) > 1 {
			q, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("quota: %w", err)
			}
			opts.Quota = q
		}
		if len(args) > 2 {
			d, err := time.ParseDuration(args[2])
			if err != nil {
				return fmt.Errorf("expires-in: %w", err)
			}
			opts.Expires = time.Now().Add(d)
		}
		_, err := s.CreateBucket(ctx, args[0], opts)
		return err
	}},
	"rmbucket": {"rmbucket <name>", 1, func(ctx context.Context, s *explorer.Session, _ io.Writer, args []string, _ string) error {
		return s.DeleteBucket(ctx, args[0])
	}},
	"grant": {"grant <dir>", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, rest string) error {
		return s.GrantLocal(ctx, localdir.PathPicker(strings.TrimSpace(rest)))
	}},
	"restore": {"restore", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, _ string) error {
		return s.RestoreLocal(ctx)
	}},
	"forget": {"forget", 0, func(ctx context.Context, s *explorer.Session, _ io.Writer, _ []string, _ string) error {
		return s.ForgetLocal(ctx)
	}},
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func printEditor(out io.Writer, e explorer.Editor) {
	if e.State == explorer.EditorClosed {
		fmt.Fprintln(out, "(no file open)")
		return
	}
	fmt.Fprintf(out, "--- %s:%s [%s]\n%s\n---\n", e.Root, e.Path, e.State, e.Text())
}

func printHelp(out io.Writer) {
	names := make([]string, 0, len(shellCmds))
	for name := range shellCmds {
		names = append(names, name)
	}
	slices.Sort(names)
	fmt.Fprintln(out, "Commands:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", shellCmds[name].usage)
	}
	fmt.Fprintln(out, "  help\n  quit")
}

// runShell reads commands from in until EOF or quit. Failures are shown on
// the status line and never end the loop.
func runShell(ctx context.Context, s *explorer.Session, in io.Reader, out io.Writer) error {
	s.RestoreLocal(ctx) // nolint:errcheck // reported on the status line
	s.Refresh(ctx)      // nolint:errcheck
	fmt.Fprintln(out, explorer.Render(s.Trees()))
	fmt.Fprintln(out, explorer.RenderStatus(s.Status()))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "opfs> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, rest, _ := strings.Cut(line, " ")
		switch name {
		case "quit", "exit":
			return nil
		case "help":
			printHelp(out)
			continue
		}

		c, ok := shellCmds[name]
		if !ok {
			fmt.Fprintf(out, "unknown command %q, type help\n", name)
			continue
		}
		args := strings.Fields(rest)
		if len(args) < c.args {
			fmt.Fprintf(out, "usage: %s\n", c.usage)
			continue
		}
		before := s.Status()
		if err := c.run(ctx, s, out, args, rest); err != nil {
			// argument errors never reach the session; a repeated failure
			// leaves the status unchanged
			if st := s.Status(); st.Level != explorer.LevelError || st == before {
				fmt.Fprintln(out, "error: "+explorer.Describe(err))
				continue
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintln(out, explorer.RenderStatus(s.Status()))
	}
}
