package main

import (
	"context"
	"fmt"
	"os"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/requests"
	"github.com/spf13/cobra"
)

var (
	bucketQuota      int64
	bucketExpiresIn  time.Duration
	bucketExpiresAt  string
	bucketDurability string
)

func init() {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Create, delete and reclaim buckets",
	}

	create := newBucketCreateCmd()
	create.Flags().Int64Var(&bucketQuota, "quota", 0, "Maximum stored bytes (0 = unlimited)")
	create.Flags().DurationVar(&bucketExpiresIn, "expires-in", 0, "Expire the bucket after this duration")
	create.Flags().StringVar(&bucketExpiresAt, "expires-at", "", "Expire the bucket at this RFC3339 time")
	create.Flags().StringVar(&bucketDurability, "durability", "", "strict or relaxed (default from config)")
	create.MarkFlagsMutuallyExclusive("expires-in", "expires-at")

	cmd.AddCommand(create, newBucketDeleteCmd(), newBucketApplyCmd(), newBucketSweepCmd())
	rootCmd.AddCommand(cmd)
}

func newBucketCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a bucket",
		Long: `The create command registers a new bucket.

Example:
  opfsx bucket create cache1 --quota 1024 --expires-in 60s
  opfsx bucket create logs --durability strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := bucketOptions()
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				d, err := a.registry.CreateRoot(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printResult(d, "Created bucket %s (%s)\n", d.Name, d.ID)
			})
		},
	}
}

func bucketOptions() (opfs.RootOptions, error) {
	opts := opfs.RootOptions{Quota: bucketQuota}
	if bucketExpiresIn < 0 {
		return opts, fmt.Errorf("--expires-in must be positive")
	}
	if bucketExpiresIn > 0 {
		opts.Expires = time.Now().Add(bucketExpiresIn)
	}
	if bucketExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, bucketExpiresAt)
		if err != nil {
			return opts, fmt.Errorf("--expires-at: %w", err)
		}
		opts.Expires = t
	}
	if bucketDurability != "" {
		d, err := opfs.ParseDurability(bucketDurability)
		if err != nil {
			return opts, err
		}
		opts.Durability = d
	}
	return opts, nil
}

func newBucketDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a bucket and everything in it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.registry.DeleteRoot(ctx, args[0]); err != nil {
					return err
				}
				return printResult(map[string]string{"deleted": args[0]}, "Deleted bucket %s\n", args[0])
			})
		},
	}
}

func newBucketApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file>",
		Short: "Create buckets and seed entries from a JSON or YAML definition",
		Long: `The apply command reads bucket definitions and creates the missing
buckets and entries. Existing buckets keep their settings.

Example definition:
  [{"name": "cache1", "quota": 1024, "expires_in": "60s",
    "nodes": [{"path": "a/b", "type": "directory"},
              {"path": "a/b/c", "content": "hello"}]}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			reqs, err := requests.UnmarshalBucketRequests(data, time.Now())
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				results, err := requests.Apply(ctx, a.registry, a.session.FileSystem(), reqs)
				if jsonOut {
					if perr := printJSON(results); perr != nil {
						return perr
					}
				} else {
					for _, r := range results {
						state := "exists"
						if r.Created {
							state = "created"
						}
						fmt.Fprintf(os.Stdout, "%s: %s, %d entries\n", r.Name, state, r.Nodes)
					}
				}
				return err
			})
		},
	}
}

func newBucketSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete every expired bucket now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				deleted, err := a.registry.Sweep(ctx, time.Now())
				if deleted == nil {
					deleted = []string{}
				}
				if perr := printResult(deleted, "Reclaimed %d expired buckets\n", len(deleted)); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}
