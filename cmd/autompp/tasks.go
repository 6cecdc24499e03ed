package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
	"github.com/Shailesh-Murmu/AutoMpp/internal/wiring"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))

func newTasksCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List, save and delete task definitions",
	}

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "Show configured tasks per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(load)
			if err != nil {
				return err
			}
			set, err := store.Load()
			if err != nil {
				if !errors.Is(err, taskdef.ErrCorrupt) {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (a copy was kept as %s.backup)\n", err, store.Path())
			}
			categories := taskdef.Categories
			if category != "" {
				c, err := taskdef.ParseCategory(category)
				if err != nil {
					return err
				}
				categories = []taskdef.Category{c}
			}
			renderTasks(cmd.OutOrStdout(), set, categories)
			return nil
		},
	}
	list.Flags().StringVar(&category, "category", "", "only show one category")

	save := &cobra.Command{
		Use:   "save <category> <file|->",
		Short: "Add a task, or replace the task with the same title",
		Long: `Read one task (JSON or YAML) from a file, or stdin when the file is "-",
and store it. A task with the same title in the category is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := taskdef.ParseCategory(args[0])
			if err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			task, err := taskdef.DecodeTask(c, data)
			if err != nil {
				return err
			}
			return editTasks(load, func(set *taskdef.Set) error {
				if err := set.Upsert(task); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s task %q\n", c, task.TaskTitle())
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <category> <title>",
		Short: "Delete a task; deleting a tracker also deletes its reminders and form updaters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := taskdef.ParseCategory(args[0])
			if err != nil {
				return err
			}
			title := args[1]
			return editTasks(load, func(set *taskdef.Set) error {
				report := set.Delete(c, title)
				if !report.Removed {
					return fmt.Errorf("no %s task titled %q", c, title)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "deleted %s task %q\n", c, title)
				if report.Reminders > 0 || report.FormUpdaters > 0 {
					fmt.Fprintf(out, "also deleted %d linked reminder(s) and %d form updater(s)\n", report.Reminders, report.FormUpdaters)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, save, del)
	return cmd
}

func openStore(load configLoader) (*taskdef.Store, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return wiring.NewTaskStore(cfg), nil
}

// editTasks loads the task file, applies edit and saves. A corrupt file is
// never overwritten.
func editTasks(load configLoader, edit func(*taskdef.Set) error) error {
	store, err := openStore(load)
	if err != nil {
		return err
	}
	set, err := store.Load()
	if err != nil {
		return fmt.Errorf("load %s: %w", store.Path(), err)
	}
	if err := edit(set); err != nil {
		return err
	}
	return store.Save(set)
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func renderTasks(w io.Writer, set *taskdef.Set, categories []taskdef.Category) {
	for _, c := range categories {
		tasks := set.Tasks(c)
		fmt.Fprintf(w, "%s (%d)\n", headingStyle.Render(string(c)), len(tasks))
		if len(tasks) == 0 {
			fmt.Fprintln(w, "  none")
			continue
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Title", "Details")
		for _, task := range tasks {
			t.Row(task.TaskTitle(), describe(task))
		}
		fmt.Fprintln(w, t.Render())
	}
}

func describe(task taskdef.Task) string {
	switch t := task.(type) {
	case taskdef.SyncTask:
		return fmt.Sprintf("%s -> %s", t.FolderID, t.Path)
	case taskdef.MessageTask:
		return fmt.Sprintf("on %s to %s: %s", t.Date, t.Excel, t.Subject)
	case taskdef.ReconcileTask:
		return fmt.Sprintf("%s x %s -> %s", t.MasterExcel, t.ResponseSheetID, t.ResultPath)
	case taskdef.SchemaUpdateTask:
		return fmt.Sprintf("tracker %q -> form %s", t.TrackerTitle, taskdef.ExtractGoogleID(t.FormLink))
	case taskdef.FollowUpTask:
		schedule := t.Frequency
		if t.Frequency == taskdef.FrequencySelectDates {
			schedule = "days " + strings.Join(t.Dates, ",")
		}
		return fmt.Sprintf("tracker %q, %s to %s, %s", t.TrackerTitle, t.StartDate, t.EndDate, schedule)
	default:
		return ""
	}
}
