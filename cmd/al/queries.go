package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

func queueCmd() *cobra.Command {
	q := &cobra.Command{Use: "queue", Short: "Work group queues"}
	var limit int
	list := &cobra.Command{
		Use:   "list GROUP",
		Short: "Unclaimed activities waiting in a group queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				items, err := c.Activities.Queue(ctx, orgID(c), args[0], limit)
				if err != nil {
					return err
				}
				return printQueue(items)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "max rows")
	q.AddCommand(list)
	q.AddCommand(&cobra.Command{
		Use:   "claim ID",
		Short: "Claim a queued activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Claim(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	})
	q.AddCommand(&cobra.Command{
		Use:   "next GROUP",
		Short: "Claim the most urgent activity in a group queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.ClaimNext(ctx, orgID(c), args[0], actorID())
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	})
	q.AddCommand(&cobra.Command{
		Use:   "release ID",
		Short: "Return a claimed activity to its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Release(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	})
	return q
}

func myCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "my",
		Short: "Your active work: overdue, due today and upcoming",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				my, err := c.Activities.MyActivities(ctx, orgID(c), actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(my)
				}
				sections := []struct {
					title string
					items []domain.QueueItem
				}{
					{"Overdue", my.Overdue},
					{"Due today", my.DueToday},
					{"Upcoming", my.Upcoming},
				}
				for _, s := range sections {
					fmt.Printf("%s (%d)\n", s.title, len(s.items))
					if len(s.items) > 0 {
						if err := printQueue(s.items); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}
}

func summaryCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Activity counts for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				user = actorID()
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				s, err := c.Activities.GetSummary(ctx, orgID(c), user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Total", "Open", "In progress", "Completed", "Skipped", "Cancelled", "Deferred", "Overdue", "Today", "This week"})
				tw.AppendRow(table.Row{s.Total, s.Open, s.InProgress, s.Completed, s.Skipped, s.Cancelled, s.Deferred, s.Overdue, s.DueToday, s.DueThisWeek})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to --actor-id)")
	return cmd
}

func entityCmd() *cobra.Command {
	e := &cobra.Command{Use: "entity", Short: "Activity history of a CRM entity"}

	var types []string
	var limit int
	timeline := &cobra.Command{
		Use:   "timeline TYPE ID",
		Short: "Activities and events of an entity, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				entries, err := c.Activities.EntityTimeline(ctx, orgID(c), args[0], args[1], activity.TimelineOptions{ActivityTypes: types, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Kind", "Title", "Actor"})
				for _, en := range entries {
					tw.AppendRow(table.Row{en.At.Local().Format("2006-01-02 15:04"), en.Kind, en.Title, en.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	timeline.Flags().StringSliceVar(&types, "type", nil, "only these activity types (drops events)")
	timeline.Flags().IntVar(&limit, "limit", 100, "max entries")
	e.AddCommand(timeline)

	e.AddCommand(&cobra.Command{
		Use:   "summary TYPE ID",
		Short: "Open and completed counts for an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				s, err := c.Activities.EntityActivities(ctx, orgID(c), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	})

	var idleDays, staleLimit int
	stale := &cobra.Command{
		Use:   "stale TYPE",
		Short: "Entities with no open work and no recent activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				list, err := c.Activities.StaleEntities(ctx, orgID(c), args[0], time.Duration(idleDays)*24*time.Hour, staleLimit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Entity", "Last activity", "Idle days", "Activities"})
				for _, e := range list {
					tw.AppendRow(table.Row{e.EntityID, e.LastActivityAt.Local().Format("2006-01-02"), e.IdleDays, e.ActivityCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	stale.Flags().IntVar(&idleDays, "idle-days", 14, "days without activity")
	stale.Flags().IntVar(&staleLimit, "limit", 50, "max rows")
	e.AddCommand(stale)

	var requires []string
	check := &cobra.Command{
		Use:     "check TYPE ID",
		Short:   "Check activity requirements before moving an entity forward",
		Example: `  al entity check submission sub-1 --require interview:1 --require reference_check:2`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := parseRequirements(requires)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				res, err := c.Activities.CheckTransitionRequirements(ctx, orgID(c), args[0], args[1], reqs)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Satisfied {
					fmt.Println("all requirements met")
					return nil
				}
				for _, u := range res.Unmet {
					fmt.Printf("unmet: %s needs %d %s, has %d\n", u.ActivityType, u.MinCount, u.Status, u.Actual)
				}
				return fmt.Errorf("%d requirements unmet", len(res.Unmet))
			})
		},
	}
	check.Flags().StringArrayVar(&requires, "require", nil, "TYPE:COUNT[:STATUS], repeatable")
	e.AddCommand(check)
	return e
}

func parseRequirements(specs []string) ([]domain.Requirement, error) {
	reqs := make([]domain.Requirement, 0, len(specs))
	for _, s := range specs {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("requirement %q: want TYPE:COUNT[:STATUS]", s)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("requirement %q: bad count", s)
		}
		r := domain.Requirement{ActivityType: parts[0], MinCount: n}
		if len(parts) == 3 {
			r.Status = domain.Status(parts[2])
			if !r.Status.Valid() {
				return nil, fmt.Errorf("requirement %q: unknown status", s)
			}
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

func statsCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Completion and timeliness statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				f, err := ff.filter(orgID(c))
				if err != nil {
					return err
				}
				f.Limit, f.Offset = 0, 0
				f.Now = c.Activities.Now()
				s, err := c.Activities.Stats(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Total", "Completed", "Completion", "Avg minutes", "Overdue closed", "On time"})
				tw.AppendRow(table.Row{s.Total, s.Completed, fmt.Sprintf("%.0f%%", s.CompletionRate*100), fmt.Sprintf("%.1f", s.AverageDurationMinutes), s.OverdueClosed, fmt.Sprintf("%.0f%%", s.OnTimeRate*100)})
				tw.Render()
				return nil
			})
		},
	}
	ff.register(cmd)
	return cmd
}
