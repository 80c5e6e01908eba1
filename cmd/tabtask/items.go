package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tabtask/internal/app"
	"tabtask/internal/domain"
	"tabtask/internal/engine"
)

func tabCmd() *cobra.Command {
	tab := &cobra.Command{Use: "tab", Short: "Manage tabs"}
	tab.AddCommand(tabListCmd())
	tab.AddCommand(tabAddCmd())
	tab.AddCommand(tabRenameCmd())
	tab.AddCommand(tabDeleteCmd())
	tab.AddCommand(tabMoveCmd())
	tab.AddCommand(tabSelectCmd())
	return tab
}

func tabListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tabs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				tabs := c.Engine.Tabs()
				if viper.GetBool("json") {
					return printJSON(tabs)
				}
				selected := c.Engine.Selected()
				tw := newTable(table.Row{"", "ID", "Title", "Tasks"})
				for _, t := range tabs {
					mark := ""
					if t.Ref == selected {
						mark = "*"
					}
					tw.AppendRow(table.Row{mark, t.Ref, t.Title, len(c.Engine.Tasks(t.Ref))})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func tabAddCmd() *cobra.Command {
	var sel bool
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a tab at the end",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				op, err := c.Engine.AddTab(strings.Join(args, " "))
				if err != nil {
					return err
				}
				if err := settle(ctx, op); err != nil {
					return err
				}
				if sel {
					if err := c.Engine.Select(op.Ref()); err != nil {
						return err
					}
				}
				return printTab(c, op.Ref())
			})
		},
	}
	cmd.Flags().BoolVar(&sel, "select", false, "select the new tab")
	return cmd
}

func tabRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a tab",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return run(ctx, func() (*engine.Op, error) {
					return c.Engine.RenameTab(ref, strings.Join(args[1:], " "))
				}, func() error { return printTab(c, ref) })
			})
		},
	}
}

func tabDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tab; its tasks move to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return run(ctx, func() (*engine.Op, error) {
					return c.Engine.DeleteTab(ref)
				}, func() error {
					fmt.Printf("deleted tab %s; selected %s\n", ref, c.Engine.Selected())
					return nil
				})
			})
		},
	}
}

func tabMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <over-id>",
		Short: "Move a tab to the position of another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, over, err := parsePair(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return run(ctx, func() (*engine.Op, error) {
					return c.Engine.ReorderTabs(active, over)
				}, func() error {
					for i, t := range c.Engine.Tabs() {
						fmt.Printf("%d. %s (%s)\n", i+1, t.Title, t.Ref)
					}
					return nil
				})
			})
		},
	}
}

func tabSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Select the current tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				if err := c.Engine.Select(ref); err != nil {
					return err
				}
				return printTab(c, ref)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks in the selected tab"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskEditCmd())
	task.AddCommand(taskToggleCmd("done", true))
	task.AddCommand(taskToggleCmd("undo", false))
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskMoveCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var tabArg string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks of a tab",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				tab, err := tabOrSelected(c, tabArg)
				if err != nil {
					return err
				}
				tasks := c.Engine.Tasks(tab)
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable(table.Row{"ID", "Done", "Text", "Created"})
				for _, t := range tasks {
					done := ""
					if t.IsCompleted {
						done = "x"
					}
					tw.AppendRow(table.Row{t.Ref, done, t.Text, t.CreatedAt.Local().Format(time.DateTime)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tabArg, "tab", "", "tab id (default: selected tab)")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var tabArg string
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task at the top of a tab",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				tab, err := tabOrSelected(c, tabArg)
				if err != nil {
					return err
				}
				op, err := c.Engine.AddTask(tab, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if err := settle(ctx, op); err != nil {
					return err
				}
				return printTask(c, op.Ref())
			})
		},
	}
	cmd.Flags().StringVar(&tabArg, "tab", "", "tab id (default: selected tab)")
	return cmd
}

func taskEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <text>",
		Short: "Replace a task's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return run(ctx, func() (*engine.Op, error) {
					return c.Engine.EditTask(ref, strings.Join(args[1:], " "))
				}, func() error { return printTask(c, ref) })
			})
		},
	}
}

func taskToggleCmd(use string, done bool) *cobra.Command {
	short := "Mark a task as done"
	if !done {
		short = "Mark a task as not done"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return run(ctx, func() (*engine.Op, error) {
					return c.Engine.ToggleTask(ref, done)
				}, func() error { return printTask(c, ref) })
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Move a task to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return run(ctx, func() (*engine.Op, error) {
					return c.Engine.DeleteTask(ref)
				}, func() error {
					fmt.Printf("moved task %s to the trash\n", ref)
					return nil
				})
			})
		},
	}
}

func taskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <over-id>",
		Short: "Move a task to the position of another in the same tab",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, over, err := parsePair(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return run(ctx, func() (*engine.Op, error) {
					return c.Engine.ReorderTasks(active, over)
				}, func() error {
					t, ok := c.Engine.Task(active)
					if !ok || t.TabRef == nil {
						return nil
					}
					for i, task := range c.Engine.Tasks(*t.TabRef) {
						fmt.Printf("%d. %s (%s)\n", i+1, task.Text, task.Ref)
					}
					return nil
				})
			})
		},
	}
}

func trashCmd() *cobra.Command {
	tr := &cobra.Command{Use: "trash", Short: "Deleted tasks"}
	tr.AddCommand(trashListCmd())
	tr.AddCommand(trashRestoreCmd())
	return tr
}

func trashListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deleted tasks still within the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				entries := c.Trash.List(c.Engine.Now())
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable(table.Row{"ID", "Text", "Tab", "Days left"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.Task.Ref, e.Task.Text, e.TabTitle, e.DaysRemaining})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func trashRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a task, recreating its tab when it was deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				title, err := c.Trash.Restore(ctx, ref)
				if err != nil {
					return describe(err)
				}
				fmt.Printf("restored task %s to %q\n", ref, title)
				return nil
			})
		},
	}
}

// run starts a mutation, waits for the remote store and then calls show.
func run(ctx context.Context, start func() (*engine.Op, error), show func() error) error {
	op, err := start()
	if err != nil {
		return err
	}
	if err := settle(ctx, op); err != nil {
		return err
	}
	return show()
}

func tabOrSelected(c *app.Context, arg string) (domain.Ref, error) {
	if arg != "" {
		return parseRef(arg)
	}
	sel := c.Engine.Selected()
	if sel.IsZero() {
		return domain.Ref{}, fmt.Errorf("no tab selected; pass --tab")
	}
	return sel, nil
}

func parsePair(args []string) (domain.Ref, domain.Ref, error) {
	a, err := parseRef(args[0])
	if err != nil {
		return domain.Ref{}, domain.Ref{}, err
	}
	b, err := parseRef(args[1])
	if err != nil {
		return domain.Ref{}, domain.Ref{}, err
	}
	return a, b, nil
}

func printTab(c *app.Context, ref domain.Ref) error {
	t, ok := c.Engine.Tab(ref)
	if !ok {
		return fmt.Errorf("tab %s not found", ref)
	}
	if viper.GetBool("json") {
		return printJSON(t)
	}
	fmt.Printf("tab %s: %s\n", t.Ref, t.Title)
	return nil
}

func printTask(c *app.Context, ref domain.Ref) error {
	t, ok := c.Engine.Task(ref)
	if !ok {
		return fmt.Errorf("task %s not found", ref)
	}
	if viper.GetBool("json") {
		return printJSON(t)
	}
	state := "open"
	if t.IsCompleted {
		state = "done"
	}
	fmt.Printf("task %s [%s]: %s\n", t.Ref, state, t.Text)
	return nil
}
