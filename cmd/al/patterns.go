package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/config"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

func patternCmd() *cobra.Command {
	p := &cobra.Command{Use: "pattern", Short: "Manage activity patterns"}
	p.AddCommand(patternImportCmd())
	p.AddCommand(patternValidateCmd())
	p.AddCommand(patternListCmd())
	p.AddCommand(patternShowCmd())
	p.AddCommand(patternToggleCmd(true))
	p.AddCommand(patternToggleCmd(false))
	return p
}

func patternImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Create or replace patterns from a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns, err := config.LoadPatterns(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				org := orgID(c)
				stored := make([]domain.ActivityPattern, 0, len(patterns))
				for _, p := range patterns {
					if p.OrgID == "" {
						p.OrgID = org
					}
					saved, err := c.Engine.UpsertPattern(ctx, p, actorID())
					if err != nil {
						return fmt.Errorf("pattern %s: %w", p.PatternCode, err)
					}
					stored = append(stored, saved)
				}
				if viper.GetBool("json") {
					return printJSON(stored)
				}
				fmt.Printf("imported %d patterns into org %s\n", len(stored), org)
				return nil
			})
		},
	}
}

func patternValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a catalog and its templates without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns, err := config.LoadPatterns(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				var failed int
				for _, p := range patterns {
					if p.Priority == "" {
						p.Priority = domain.PriorityNormal
					}
					if err := c.Engine.ValidatePattern(p); err != nil {
						failed++
						fmt.Printf("%s: %v\n", p.PatternCode, err)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d patterns invalid", failed, len(patterns))
				}
				fmt.Printf("%d patterns valid\n", len(patterns))
				return nil
			})
		},
	}
}

func patternListCmd() *cobra.Command {
	var f domain.PatternFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				f.OrgID = orgID(c)
				items, err := c.Engine.ListPatterns(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Trigger", "Entity", "Type", "Assign", "Priority", "Active"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.PatternCode, p.TriggerEvent, p.EntityType, p.ActivityType, p.AssignTo.Type, p.Priority, p.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TriggerEvent, "trigger", "", "trigger event filter")
	cmd.Flags().StringVar(&f.EntityType, "entity-type", "", "entity type filter")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "only active patterns")
	return cmd
}

func patternShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show CODE",
		Short: "Show a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				p, err := c.Engine.GetPattern(ctx, orgID(c), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func patternToggleCmd(active bool) *cobra.Command {
	use, short := "enable CODE", "Activate a pattern"
	if !active {
		use, short = "disable CODE", "Deactivate a pattern"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				p, err := c.Engine.SetPatternActive(ctx, orgID(c), args[0], active, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func eventCmd() *cobra.Command {
	e := &cobra.Command{Use: "event", Short: "Feed and inspect events"}
	e.AddCommand(eventProcessCmd())
	e.AddCommand(eventTailCmd())
	return e
}

func eventProcessCmd() *cobra.Command {
	var file string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "process [JSON]",
		Short: "Run one event or a JSON array of events through the patterns",
		Long:  "Reads the event from the argument, from --file, or from stdin when --file is '-'.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			switch {
			case len(args) == 1:
				data = []byte(args[0])
			case file == "-":
				data, err = io.ReadAll(cmd.InOrStdin())
			case file != "":
				data, err = os.ReadFile(file)
			default:
				return fmt.Errorf("event JSON or --file required")
			}
			if err != nil {
				return err
			}
			evs, err := decodeEvents(data)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				org := orgID(c)
				for i := range evs {
					if evs[i].OrgID == "" {
						evs[i].OrgID = org
					}
				}
				n := concurrency
				if n <= 0 {
					n = c.Config.Engine.Concurrency
				}
				results, err := c.Engine.ProcessEvents(ctx, evs, n)
				if err != nil {
					return err
				}
				var created []domain.Activity
				for _, r := range results {
					created = append(created, r...)
				}
				return printActivities(created)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with an event or an array of events ('-' for stdin)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "events processed in parallel (defaults to engine.concurrency)")
	return cmd
}

func decodeEvents(data []byte) ([]domain.Event, error) {
	data = bytes.TrimSpace(data)
	if strings.HasPrefix(string(data), "[") {
		var evs []domain.Event
		if err := json.Unmarshal(data, &evs); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return evs, nil
	}
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return []domain.Event{ev}, nil
}

func eventTailCmd() *cobra.Command {
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				f.OrgID = orgID(c)
				items, err := c.Repo.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS.Local().Format("2006-01-02 15:04:05"), e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}
