package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/adapters"
	"github.com/sashapodgoreanu/opfs-poc/config"
	"github.com/sashapodgoreanu/opfs-poc/explorer"
	"github.com/sashapodgoreanu/opfs-poc/internal/catalog"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
	"github.com/sashapodgoreanu/opfs-poc/localdir"
	"github.com/sashapodgoreanu/opfs-poc/registry"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    int
	dataDir    string
	backend    string
	jsonOut    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "opfsx",
	Short: "Explore and manage private storage roots and a granted local directory",
	Long: `opfsx browses and edits hierarchical storage roots: the default private
root, named buckets with quota, expiry and durability settings, and a local
directory the user granted access to.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", config.InfoVerbose,
		"Log verbosity between 1 (error) and 5 (trace)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding the catalog and the os backend roots")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: mem, os or s3")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+explorer.Describe(err))
		os.Exit(1)
	}
}

// loadConfig builds cfg from defaults, the config file and the global flags,
// in that order
func loadConfig(cmd *cobra.Command) error {
	override := &config.ConfigOverride{}
	if configPath != "" {
		var err error
		if override, err = config.LoadConfigOverrideFile(configPath); err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("verbose") || override.LogLvl == nil {
		override.LogLvl = util.Pointer(min(max(verbose, config.ErrorVerbose), config.TraceVerbose))
	}
	if flags.Changed("data-dir") {
		override.DataDir = &dataDir
	}
	if flags.Changed("backend") {
		override.Backend = &backend
	}
	cfg = config.NewConfig(override)
	util.InitializeLogger(cfg.LogLvl)
	return nil
}

// app wires the storage stack selected by cfg
type app struct {
	backend  opfs.Backend
	catalog  *catalog.Catalog
	registry *registry.Registry
	local    *localdir.Access
	session  *explorer.Session
}

func openApp(ctx context.Context) (*app, error) {
	logger := util.GetLogger("main")

	b, err := adapters.New(cfg)
	if err != nil {
		return nil, err
	}
	c, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		b.Close()
		return nil, err
	}
	reg := registry.New(b, c, registry.WithDefaultDurability(cfg.DefaultDurability))
	local := localdir.New(c, cfg.DefaultDurability)
	logger.Debug().Str("backend", b.Type()).Str("catalog", cfg.CatalogPath).Msg("Storage opened")

	return &app{
		backend:  b,
		catalog:  c,
		registry: reg,
		local:    local,
		session:  explorer.NewSession(reg, local),
	}, nil
}

func (a *app) Close() error {
	cerr := a.catalog.Close()
	if err := a.backend.Close(); err != nil {
		return err
	}
	return cerr
}

// withApp runs fn with a freshly opened app and closes it afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printResult prints v as JSON with --json and msg otherwise
func printResult(v any, format string, args ...any) error {
	if jsonOut {
		return printJSON(v)
	}
	fmt.Fprintf(os.Stdout, format, args...)
	return nil
}
