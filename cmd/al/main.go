package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/config"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/db"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Activityline CLI",
	Long: `Activityline turns CRM events into assigned, tracked activities.
Core concepts:
- Event: something that happened in the CRM (submission.created, job.updated, ...).
- Pattern: a rule "when event X happens on entity Y, create activity Z for assignee W, due in D".
- Activity: a unit of work with a lifecycle open -> in_progress -> completed (or skipped, cancelled, deferred).
- Assignment rules: owner, creator, RACI role, specific user or role, round robin, least busy, manager.
- Queues: activities routed to a group wait unassigned until someone claims them.
- Sweeps: overdue work is escalated to the manager on a cron schedule; due-soon work gets one reminder.
- Event log: every activity change is recorded; view it with 'al event tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ACTIVITYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("org", "", "org id (overrides config default)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	for _, name := range []string{"workspace", "json", "actor-id", "org", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(patternCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(myCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(entityCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(sweepCmd())
}

func initCmd() *cobra.Command {
	var org string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(org)), 0o644); err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				fmt.Printf("Initialized workspace for org %s (config %s, database %s)\n", c.Config.Org.ID, path, db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&org, "org-id", "default", "org id written to the config")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				version, err := migrate.Migrate(ctx, c.DB)
				if err != nil {
					return err
				}
				fmt.Printf("schema version %d\n", version)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config valid")
			return nil
		},
	})
	return cfgCmd
}

// --- helpers ---

func withApp(ctx context.Context, opts app.Options, fn func(context.Context, *app.Context) error) error {
	opts.Workspace = viper.GetString("workspace")
	if level := viper.GetString("log-level"); level != "" {
		cfg := opts.Config
		if cfg == nil {
			var err error
			if cfg, err = config.LoadOptional(opts.Workspace); err != nil {
				return err
			}
		}
		cfg.Logging.Level = level
		opts.Config = cfg
	}
	c, err := app.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func orgID(c *app.Context) string {
	return c.OrgID(viper.GetString("org"))
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printActivities(items []domain.Activity) error {
	if viper.GetBool("json") {
		if items == nil {
			items = []domain.Activity{}
		}
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Number", "Type", "Subject", "Status", "Priority", "Assignee", "Due"})
	for _, a := range items {
		assignee := a.AssignedTo
		if assignee == "" && a.AssignedGroup != "" {
			assignee = "@" + a.AssignedGroup
		}
		tw.AppendRow(table.Row{a.ID, a.ActivityNumber, a.ActivityType, a.Subject, a.Status, a.Priority, assignee, a.DueDate.Local().Format("2006-01-02 15:04")})
	}
	tw.Render()
	return nil
}

func printQueue(items []domain.QueueItem) error {
	if viper.GetBool("json") {
		if items == nil {
			items = []domain.QueueItem{}
		}
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Subject", "Priority", "Assignee", "Due", "When"})
	for _, q := range items {
		tw.AppendRow(table.Row{q.ID, q.Subject, q.Priority, q.AssignedTo, q.DueDate.Local().Format("2006-01-02 15:04"), q.DueLabel})
	}
	tw.Render()
	return nil
}

// parseTime accepts RFC 3339, a date, or a duration from now such as "48h".
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("time required")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(d).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: want RFC 3339, YYYY-MM-DD or a duration", s)
	}
	return t.UTC(), nil
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
