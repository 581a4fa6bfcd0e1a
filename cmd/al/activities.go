package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

func activityCmd() *cobra.Command {
	a := &cobra.Command{Use: "activity", Aliases: []string{"act"}, Short: "Create, inspect and move activities"}
	a.AddCommand(activityListCmd())
	a.AddCommand(activityShowCmd())
	a.AddCommand(activityCreateCmd())
	a.AddCommand(activityStartCmd())
	a.AddCommand(activityCompleteCmd())
	a.AddCommand(activityReasonCmd("cancel", "Cancel an activity", func(ctx context.Context, c *app.Context, id, reason string) (domain.Activity, error) {
		return c.Activities.Cancel(ctx, id, actorID(), reason)
	}))
	a.AddCommand(activityReasonCmd("skip", "Skip an activity", func(ctx context.Context, c *app.Context, id, reason string) (domain.Activity, error) {
		return c.Activities.Skip(ctx, id, actorID(), reason)
	}))
	a.AddCommand(activityDeferCmd())
	a.AddCommand(activityReactivateCmd())
	a.AddCommand(activityRescheduleCmd())
	a.AddCommand(activityReassignCmd())
	a.AddCommand(activityNoteCmd())
	a.AddCommand(activityNotesCmd())
	a.AddCommand(activityCheckCmd())
	a.AddCommand(activityDeleteCmd())
	return a
}

type filterFlags struct {
	assignedTo, group, entityType, entityID string
	statuses, priorities, types             []string
	pattern, dueBefore, dueAfter            string
	overdue, unassigned                     bool
	sort                                    string
	desc                                    bool
	limit, offset                           int
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&ff.assignedTo, "assigned-to", "", "assignee user id")
	fs.StringVar(&ff.group, "group", "", "assigned group")
	fs.StringVar(&ff.entityType, "entity-type", "", "entity type")
	fs.StringVar(&ff.entityID, "entity-id", "", "entity id")
	fs.StringSliceVar(&ff.statuses, "status", nil, "statuses (repeatable or comma separated)")
	fs.StringSliceVar(&ff.priorities, "priority", nil, "priorities")
	fs.StringSliceVar(&ff.types, "type", nil, "activity types")
	fs.StringVar(&ff.pattern, "pattern", "", "pattern code")
	fs.StringVar(&ff.dueBefore, "due-before", "", "due before (RFC 3339, date or duration)")
	fs.StringVar(&ff.dueAfter, "due-after", "", "due after (RFC 3339, date or duration)")
	fs.BoolVar(&ff.overdue, "overdue", false, "only overdue activities")
	fs.BoolVar(&ff.unassigned, "unassigned", false, "only unassigned activities")
	fs.StringVar(&ff.sort, "sort", "due_date", "sort field (due_date, priority, created_at)")
	fs.BoolVar(&ff.desc, "desc", false, "sort descending")
	fs.IntVar(&ff.limit, "limit", 50, "max rows")
	fs.IntVar(&ff.offset, "offset", 0, "rows to skip")
}

func (ff filterFlags) filter(orgID string) (domain.ActivityFilter, error) {
	f := domain.ActivityFilter{
		OrgID:         orgID,
		AssignedTo:    ff.assignedTo,
		AssignedGroup: ff.group,
		EntityType:    ff.entityType,
		EntityID:      ff.entityID,
		Types:         ff.types,
		PatternCode:   ff.pattern,
		Unassigned:    ff.unassigned,
		Sort:          domain.SortField(ff.sort),
		Desc:          ff.desc,
		Limit:         ff.limit,
		Offset:        ff.offset,
	}
	for _, s := range ff.statuses {
		st := domain.Status(strings.TrimSpace(s))
		if !st.Valid() {
			return f, fmt.Errorf("unknown status %q", s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, p := range ff.priorities {
		pr := domain.Priority(strings.TrimSpace(p))
		if !pr.Valid() {
			return f, fmt.Errorf("unknown priority %q", p)
		}
		f.Priorities = append(f.Priorities, pr)
	}
	var err error
	if f.DueBefore, err = optionalTime(ff.dueBefore); err != nil {
		return f, err
	}
	if f.DueAfter, err = optionalTime(ff.dueAfter); err != nil {
		return f, err
	}
	if ff.overdue {
		overdue := true
		f.Overdue = &overdue
	}
	return f, nil
}

func activityListCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				f, err := ff.filter(orgID(c))
				if err != nil {
					return err
				}
				f.Now = c.Activities.Now()
				items, err := c.Activities.GetMany(ctx, f)
				if err != nil {
					return err
				}
				return printActivities(items)
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func activityCreateCmd() *cobra.Command {
	var in activity.CreateInput
	var due, priority, checklist string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a manual activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				in.OrgID = orgID(c)
				in.CreatedBy = actorID()
				in.Priority = domain.Priority(priority)
				if due != "" {
					t, err := parseTime(due)
					if err != nil {
						return err
					}
					in.DueDate = t
				}
				for i, label := range splitList(checklist) {
					in.Checklist = append(in.Checklist, domain.ChecklistItem{ID: fmt.Sprintf("item-%d", i+1), Label: label})
				}
				a, err := c.Activities.Create(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&in.ActivityType, "type", "task", "activity type")
	fs.StringVar(&in.Subject, "subject", "", "subject")
	fs.StringVar(&in.Description, "description", "", "description")
	fs.StringVar(&in.EntityType, "entity-type", "", "entity type")
	fs.StringVar(&in.EntityID, "entity-id", "", "entity id")
	fs.StringVar(&in.AssignedTo, "assign", "", "assignee user id")
	fs.StringVar(&in.AssignedGroup, "group", "", "queue group")
	fs.StringVar(&priority, "priority", string(domain.PriorityNormal), "low, normal, high or urgent")
	fs.StringVar(&due, "due", "", "due date (RFC 3339, date or duration)")
	fs.StringSliceVar(&in.Tags, "tag", nil, "tags")
	fs.StringVar(&checklist, "checklist", "", "checklist labels separated by ';'")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func activityStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start ID",
		Short: "Mark an activity in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Start(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
}

func activityCompleteCmd() *cobra.Command {
	var in activity.CompleteInput
	var duration int
	var fu activity.FollowUpInput
	var fuDue, fuPriority string
	cmd := &cobra.Command{
		Use:   "complete ID",
		Short: "Complete an activity, optionally scheduling a follow-up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ActivityID = args[0]
			in.UserID = actorID()
			if cmd.Flags().Changed("duration") {
				in.DurationMinutes = &duration
			}
			if fu.Subject != "" || fuDue != "" {
				t, err := parseTime(fuDue)
				if err != nil {
					return fmt.Errorf("--follow-up-due: %w", err)
				}
				fu.DueDate = t
				fu.Priority = domain.Priority(fuPriority)
				in.FollowUp = &fu
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				res, err := c.Activities.Complete(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				items := []domain.Activity{res.Activity}
				if res.FollowUp != nil {
					items = append(items, *res.FollowUp)
				}
				return printActivities(items)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&in.Outcome, "outcome", "", "outcome code")
	fs.StringVar(&in.OutcomeNotes, "notes", "", "outcome notes")
	fs.IntVar(&duration, "duration", 0, "minutes spent")
	fs.StringVar(&fu.Subject, "follow-up", "", "follow-up subject")
	fs.StringVar(&fuDue, "follow-up-due", "", "follow-up due date")
	fs.StringVar(&fu.ActivityType, "follow-up-type", "", "follow-up activity type (defaults to the parent's)")
	fs.StringVar(&fu.AssignedTo, "follow-up-assign", "", "follow-up assignee (defaults to the parent's)")
	fs.StringVar(&fuPriority, "follow-up-priority", "", "follow-up priority (defaults to the parent's)")
	return cmd
}

func activityReasonCmd(name, short string, fn func(context.Context, *app.Context, string, string) (domain.Activity, error)) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   name + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := fn(ctx, c, args[0], reason)
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	return cmd
}

func activityDeferCmd() *cobra.Command {
	var until, reason string
	cmd := &cobra.Command{
		Use:   "defer ID",
		Short: "Park an activity until a later date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseTime(until)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Defer(ctx, args[0], actorID(), due, reason)
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "new due date")
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	_ = cmd.MarkFlagRequired("until")
	return cmd
}

func activityReactivateCmd() *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "reactivate ID",
		Short: "Reopen a deferred activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t time.Time
			if due != "" {
				var err error
				if t, err = parseTime(due); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Reactivate(ctx, args[0], actorID(), t)
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "new due date (keeps the current one when empty)")
	return cmd
}

func activityRescheduleCmd() *cobra.Command {
	var due, reason string
	cmd := &cobra.Command{
		Use:   "reschedule ID",
		Short: "Move the due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTime(due)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Reschedule(ctx, activity.RescheduleInput{ActivityID: args[0], UserID: actorID(), DueDate: t, Reason: reason})
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "new due date")
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func activityReassignCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reassign ID USER",
		Short: "Hand an activity to another user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.Reassign(ctx, activity.ReassignInput{ActivityID: args[0], UserID: actorID(), AssignTo: args[1], Reason: reason})
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	return cmd
}

func activityNoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note ID TEXT",
		Short: "Add a note to an activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				n, err := c.Activities.AddNote(ctx, args[0], actorID(), args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
}

func activityNotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notes ID",
		Short: "List the notes of an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				notes, err := c.Activities.Notes(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Author", "Note"})
				for _, n := range notes {
					tw.AppendRow(table.Row{n.CreatedAt.Local().Format("2006-01-02 15:04"), n.AuthorID, n.Body})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func activityCheckCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "check ID ITEM",
		Short: "Tick (or with --undo untick) a checklist item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				a, err := c.Activities.UpdateChecklistItem(ctx, args[0], args[1], !undo, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(a.ChecklistProgress)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the item not done")
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				if err := c.Activities.Delete(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}
