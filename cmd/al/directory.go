package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

func directoryCmd() *cobra.Command {
	d := &cobra.Command{Use: "directory", Aliases: []string{"dir"}, Short: "Members, roles, groups, managers and entity owners"}
	d.AddCommand(memberCmd())
	d.AddCommand(setCmd("role", "Roles used by specific_role assignment",
		func(ctx context.Context, c *app.Context, name, user string) error {
			return c.Repo.AddRoleMember(ctx, orgID(c), name, user)
		},
		func(ctx context.Context, c *app.Context, name, user string) error {
			return c.Repo.RemoveRoleMember(ctx, orgID(c), name, user)
		},
		func(ctx context.Context, c *app.Context, name string) ([]string, error) {
			return c.Repo.RoleMembers(ctx, orgID(c), name)
		}))
	d.AddCommand(setCmd("group", "Work groups used by queues, round robin and least busy",
		func(ctx context.Context, c *app.Context, name, user string) error {
			return c.Repo.AddGroupMember(ctx, orgID(c), name, user, time.Now().UTC())
		},
		func(ctx context.Context, c *app.Context, name, user string) error {
			return c.Repo.RemoveGroupMember(ctx, orgID(c), name, user)
		},
		func(ctx context.Context, c *app.Context, name string) ([]string, error) {
			return c.Repo.GroupMembers(ctx, orgID(c), name)
		}))
	d.AddCommand(managerCmd())
	d.AddCommand(ownerCmd())
	return d
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Org members"}
	var name string
	var inactive bool
	add := &cobra.Command{
		Use:   "add USER",
		Short: "Add or update a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				return c.Repo.UpsertMember(ctx, repo.Member{
					OrgID:       orgID(c),
					UserID:      args[0],
					DisplayName: name,
					Active:      !inactive,
					CreatedAt:   time.Now().UTC(),
				})
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().BoolVar(&inactive, "inactive", false, "mark the member inactive")
	m.AddCommand(add)
	m.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				members, err := c.Repo.ListMembers(ctx, orgID(c))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Name", "Active"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.UserID, m.DisplayName, m.Active})
				}
				tw.Render()
				return nil
			})
		},
	})
	return m
}

type (
	memberFunc func(ctx context.Context, c *app.Context, name, user string) error
	listFunc   func(ctx context.Context, c *app.Context, name string) ([]string, error)
)

func setCmd(kind, short string, add, remove memberFunc, list listFunc) *cobra.Command {
	s := &cobra.Command{Use: kind, Short: short}
	s.AddCommand(&cobra.Command{
		Use:   "add NAME USER...",
		Short: "Add users to a " + kind,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				for _, user := range args[1:] {
					if err := add(ctx, c, args[0], user); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "rm NAME USER",
		Short: "Remove a user from a " + kind,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				return remove(ctx, c, args[0], args[1])
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "list NAME",
		Short: "List the users in a " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				users, err := list(ctx, c, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if users == nil {
						users = []string{}
					}
					return printJSON(users)
				}
				for _, u := range users {
					fmt.Println(u)
				}
				return nil
			})
		},
	})
	return s
}

func managerCmd() *cobra.Command {
	m := &cobra.Command{Use: "manager", Short: "Reporting lines used for escalation"}
	m.AddCommand(&cobra.Command{
		Use:   "set USER MANAGER",
		Short: "Set the manager of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				return c.Repo.SetManager(ctx, orgID(c), args[0], args[1])
			})
		},
	})
	m.AddCommand(&cobra.Command{
		Use:   "get USER",
		Short: "Show the manager of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				manager, err := c.Repo.ManagerOf(ctx, orgID(c), args[0])
				if err != nil {
					return err
				}
				if manager == "" {
					return fmt.Errorf("%s has no manager", args[0])
				}
				fmt.Println(manager)
				return nil
			})
		},
	})
	return m
}

func ownerCmd() *cobra.Command {
	o := &cobra.Command{Use: "owner", Short: "RACI owners of CRM entities"}

	var role string
	var primary bool
	set := &cobra.Command{
		Use:   "set TYPE ID USER",
		Short: "Give a user a RACI role on an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := domain.ParseRACIRole(role)
			if !ok {
				return fmt.Errorf("unknown RACI role %q", role)
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				return c.Repo.SetEntityOwner(ctx, domain.EntityOwner{
					OrgID:      orgID(c),
					EntityType: args[0],
					EntityID:   args[1],
					UserID:     args[2],
					Role:       r,
					IsPrimary:  primary,
					CreatedAt:  time.Now().UTC(),
				})
			})
		},
	}
	set.Flags().StringVar(&role, "role", "A", "R, A, C, I or the full role name")
	set.Flags().BoolVar(&primary, "primary", true, "primary holder of the role")
	o.AddCommand(set)

	var rmRole string
	rm := &cobra.Command{
		Use:   "rm TYPE ID USER",
		Short: "Remove a RACI role from an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := domain.ParseRACIRole(rmRole)
			if !ok {
				return fmt.Errorf("unknown RACI role %q", rmRole)
			}
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				return c.Repo.RemoveEntityOwner(ctx, orgID(c), args[0], args[1], args[2], r)
			})
		},
	}
	rm.Flags().StringVar(&rmRole, "role", "A", "R, A, C, I or the full role name")
	o.AddCommand(rm)

	o.AddCommand(&cobra.Command{
		Use:   "list TYPE ID",
		Short: "List the owners of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				owners, err := c.Repo.EntityOwners(ctx, orgID(c), args[0], args[1], "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(owners)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Role", "Primary"})
				for _, ow := range owners {
					tw.AppendRow(table.Row{ow.UserID, ow.Role, ow.IsPrimary})
				}
				tw.Render()
				return nil
			})
		},
	})
	return o
}

func sweepCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Escalate overdue activities and send due reminders once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{}, func(ctx context.Context, c *app.Context) error {
				sw := c.Sweeper
				if !all {
					sw.Options.OrgID = orgID(c)
				}
				res, err := sw.Sweep(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("scanned %d, escalated %d, reminded %d, failed %d\n", res.Scanned, res.Escalated, res.Reminded, res.Failed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all-orgs", false, "sweep every org instead of --org")
	return cmd
}
