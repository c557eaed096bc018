package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"webdl/internal/app"
	"webdl/internal/archive"
	"webdl/internal/config"
	"webdl/internal/manifest"
	"webdl/internal/remote"
	"webdl/internal/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultManifest = "manifest.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must close it.
// operation identifies the CLI command being run (e.g. "get", "manifest apply").
func newApp(cmd *cobra.Command, operation string, args []string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewApp(cmd.Context(), cfg, app.Options{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Verbose:    verbose,
		Passphrase: func() (string, error) { return app.ReadPassphrase(false) },
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn on a fresh App, records a failure on the operation and closes the App.
func withApp(cmd *cobra.Command, operation string, args []string, fn func(ctx context.Context, a *app.App) error) error {
	a, err := newApp(cmd, operation, args)
	if err != nil {
		return err
	}
	err = fn(cmd.Context(), a)
	if err != nil {
		a.Fail()
	}
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

var rootCmd = &cobra.Command{
	Use:          "webdl",
	Short:        "Archive a Q&A site into a local store",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:   %s\n", cfg.HostID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Store:     %s (%s, hash %s)\n", cfg.Store.SiteRoot(), cfg.Store.Format, cfg.Store.Hash)
		fmt.Printf("Remote:    %s every %s\n", cfg.Client.BaseURL, cfg.Client.RequestInterval.Std())
		signer, err := remote.NewSigner(cfg.Client.Signer, cfg.Client.Headers)
		if err != nil {
			return fmt.Errorf("invalid client signer: %w", err)
		}
		if hs, ok := signer.(remote.HeaderSigner); ok {
			fmt.Printf("Signer:    headers (%s)\n", strings.Join(hs.HeaderNames(), ", "))
		} else {
			fmt.Printf("Signer:    none\n")
		}
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Comments:  %t\n", cfg.Driver.Comments)
		for _, m := range cfg.Mirrors {
			fmt.Printf("Mirror:    %s (%s)\n", m.Name, m.Type)
		}
		return nil
	},
}

// store command
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the local store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root, err := app.InitStore(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Store created at %s\n", root)
		return nil
	},
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "store status", args, func(_ context.Context, a *app.App) error {
			st := a.StoreStatus()
			fmt.Printf("Store %s (version %s)\nMedia %s\n\n", st.Root, st.Version, st.MediaDir)
			if len(st.Counts) == 0 {
				fmt.Println("Store is empty.")
				return nil
			}
			rows := make([][]string, 0, len(st.Counts))
			for _, c := range st.Counts {
				rows = append(rows, []string{c.Kind, strconv.Itoa(c.Total), strconv.Itoa(c.InStore),
					strconv.Itoa(c.Tombstoned), strconv.Itoa(c.Containers)})
			}
			fmt.Println(renderTable(
				[]string{"Kind", "Known", "Stored", "Gone", "Listings"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}))
			return nil
		})
	},
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the store to the current layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stats, err := app.MigrateStore(cfg)
		if err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
		fmt.Printf("Migrated %d item(s), %d image(s) moved to the pool\n", stats.Items, stats.Images)
		return nil
	},
}

// item commands
func printItem(kind, ref string, obj store.Object) {
	if obj == nil {
		fmt.Printf("%s %s already in store\n", kind, ref)
		return
	}
	fmt.Printf("Stored %s/%s\n", obj.Kind(), obj.ObjectID())
}

var getCmd = &cobra.Command{
	Use:   "get KIND REF",
	Short: "Fetch an item unless it is stored",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "get", args, func(ctx context.Context, a *app.App) error {
			obj, err := a.GetItem(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printItem(args[0], args[1], obj)
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update KIND REF",
	Short: "Fetch an item again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "update", args, func(ctx context.Context, a *app.App) error {
			obj, err := a.UpdateItem(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printItem(args[0], args[1], obj)
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download KIND REF DEST",
	Short: "Fetch an item unless it is stored and link it at DEST",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		absolute, _ := cmd.Flags().GetBool("absolute")
		return withApp(cmd, "download", args, func(ctx context.Context, a *app.App) error {
			if _, err := a.DownloadItem(ctx, args[0], args[1], args[2], absolute); err != nil {
				return err
			}
			fmt.Printf("Linked %s %s at %s\n", args[0], args[1], args[2])
			return nil
		})
	},
}

// container command
var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Fetch the listings of an item",
}

func printListing(items []archive.ContainerItem) {
	if items == nil {
		fmt.Println("Listing already fetched.")
		return
	}
	stored := 0
	for _, it := range items {
		if it.Processed {
			stored++
		}
	}
	fmt.Printf("%d entries, %d newly stored\n", len(items), stored)
}

var containerGetCmd = &cobra.Command{
	Use:   "get KIND REF RELATION",
	Short: "Fetch a listing unless it was fetched before",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "container get", args, func(ctx context.Context, a *app.App) error {
			items, err := a.GetContainer(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printListing(items)
			return nil
		})
	},
}

var containerUpdateCmd = &cobra.Command{
	Use:   "update KIND REF RELATION",
	Short: "Fetch a listing again",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "container update", args, func(ctx context.Context, a *app.App) error {
			items, err := a.UpdateContainer(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printListing(items)
			return nil
		})
	},
}

var containerDownloadCmd = &cobra.Command{
	Use:   "download KIND REF RELATION DEST",
	Short: "Fetch a listing again and link it at DEST",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		absolute, _ := cmd.Flags().GetBool("absolute")
		return withApp(cmd, "container download", args, func(ctx context.Context, a *app.App) error {
			items, err := a.DownloadContainer(ctx, args[0], args[1], args[2], args[3], absolute)
			if err != nil {
				return err
			}
			printListing(items)
			return nil
		})
	},
}

var containerListCmd = &cobra.Command{
	Use:   "list [KIND]",
	Short: "List the relations of a kind, or every kind",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "container list", args, func(_ context.Context, a *app.App) error {
			kinds := a.Kinds()
			if len(args) == 1 {
				kinds = args
			}
			for _, k := range kinds {
				fmt.Printf("%s: %s\n", k, strings.Join(a.Relations(k), ", "))
			}
			return nil
		})
	},
}

// manifest command
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Archive the items a manifest lists",
}

func manifestPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultManifest
}

var manifestApplyCmd = &cobra.Command{
	Use:   "apply [PATH]",
	Short: "Fetch what the manifest lists and is not stored yet",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "manifest apply", args, func(ctx context.Context, a *app.App) error {
			return a.ApplyManifest(ctx, manifestPath(args), false)
		})
	},
}

var manifestUpdateCmd = &cobra.Command{
	Use:   "update [PATH]",
	Short: "Fetch everything the manifest lists again",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "manifest update", args, func(ctx context.Context, a *app.App) error {
			return a.ApplyManifest(ctx, manifestPath(args), true)
		})
	},
}

var manifestLinkCmd = &cobra.Command{
	Use:   "link [PATH]",
	Short: "Link the manifest entries into the manifest's directory tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := manifestPath(args)
		dest, _ := cmd.Flags().GetString("dest")
		if dest == "" {
			dest = filepath.Dir(path)
		}
		return withApp(cmd, "manifest link", args, func(_ context.Context, a *app.App) error {
			n, err := a.LinkManifest(path, dest)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d link(s) below %s\n", n, dest)
			return nil
		})
	},
}

var manifestFormatCmd = &cobra.Command{
	Use:   "format [PATH]",
	Short: "Rewrite the manifest in canonical form",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manifest.Format(manifestPath(args))
	},
}

// media command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Inspect and mirror the media pool",
}

var mediaUnreferencedCmd = &cobra.Command{
	Use:   "unreferenced",
	Short: "List pool files no stored item refers to",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "media unreferenced", args, func(_ context.Context, a *app.App) error {
			paths, err := a.Unreferenced()
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		})
	},
}

var mediaPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy pool files to the configured mirrors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "media push", args, func(ctx context.Context, a *app.App) error {
			results, err := a.PushMedia(ctx)
			for _, r := range results {
				fmt.Printf("%s: %d uploaded (%d bytes), %d already present\n",
					r.Mirror, r.Stats.Uploaded, r.Stats.Bytes, r.Stats.Present)
			}
			return err
		})
	},
}

// session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the sealed cookie session",
}

var sessionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the session keys and start a fresh session",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := app.ReadPassphrase(true)
		if err != nil {
			return err
		}
		return withApp(cmd, "session init", nil, func(ctx context.Context, a *app.App) error {
			if err := a.InitSession(ctx, passphrase); err != nil {
				return err
			}
			fmt.Println("Session initialized.")
			return nil
		})
	},
}

var sessionSetCookieCmd = &cobra.Command{
	Use:   "set-cookie NAME VALUE",
	Short: "Add a site cookie to the session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// The value is a credential and stays out of the history.
		return withApp(cmd, "session set-cookie", args[:1], func(ctx context.Context, a *app.App) error {
			return a.SetCookie(ctx, args[0], args[1])
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, "history", args, func(_ context.Context, a *app.App) error {
			ops, err := a.GetHistory(limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}

			rows := make([][]string, 0, len(ops))
			for _, op := range ops {
				duration := ""
				if op.FinishedAt.Valid {
					duration = op.FinishedAt.Time.Sub(op.StartedAt).Truncate(time.Millisecond).String()
				}
				rows = append(rows, []string{
					"#" + strconv.FormatInt(op.ID, 10),
					op.Operation,
					op.Parameters,
					op.StartedAt.Local().Format("2006-01-02 15:04:05"),
					op.Status,
					duration,
				})
			}
			fmt.Println(renderTable(
				[]string{"ID", "Operation", "Parameters", "Started", "Status", "Duration"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
			return nil
		})
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log KIND REF",
	Short: "View what operations did to an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "log", args, func(_ context.Context, a *app.App) error {
			events, err := a.ItemHistory(args[0], args[1])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No history.")
				return nil
			}
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					e.At.Local().Format("2006-01-02 15:04:05"),
					e.Action,
					"#" + strconv.FormatInt(e.OperationID, 10),
				})
			}
			fmt.Println(renderTable([]string{"At", "Action", "Operation"}, rows, nil))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// store subcommands
	storeCmd.AddCommand(storeInitCmd)
	storeCmd.AddCommand(storeStatusCmd)
	storeCmd.AddCommand(storeMigrateCmd)

	// container subcommands
	containerCmd.AddCommand(containerGetCmd)
	containerCmd.AddCommand(containerUpdateCmd)
	containerCmd.AddCommand(containerDownloadCmd)
	containerDownloadCmd.Flags().Bool("absolute", false, "Create absolute links")
	containerCmd.AddCommand(containerListCmd)

	// manifest subcommands
	manifestCmd.AddCommand(manifestApplyCmd)
	manifestCmd.AddCommand(manifestUpdateCmd)
	manifestCmd.AddCommand(manifestLinkCmd)
	manifestLinkCmd.Flags().String("dest", "", "Link below this directory instead of the manifest's")
	manifestCmd.AddCommand(manifestFormatCmd)

	// media subcommands
	mediaCmd.AddCommand(mediaUnreferencedCmd)
	mediaCmd.AddCommand(mediaPushCmd)

	// session subcommands
	sessionCmd.AddCommand(sessionInitCmd)
	sessionCmd.AddCommand(sessionSetCookieCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().Bool("absolute", false, "Create an absolute link")
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(logCmd)
}
