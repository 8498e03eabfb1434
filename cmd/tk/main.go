package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"taskvault/internal/config"
	"taskvault/internal/engine"
	"taskvault/internal/events"
	"taskvault/internal/kv"
	"taskvault/internal/migrate"
	"taskvault/internal/server"
	"taskvault/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "tk",
	Short: "TaskVault CLI",
	Long: `TaskVault tracks personal tasks through their whole lifecycle.
Tasks age from pending to overdue, expire into a history log after
their retention window, and history itself is purged on its own
schedule. Cleanup runs automatically at startup when due, or on
demand with 'tk cleanup run'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := kv.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("no-cleanup", false, "skip the scheduled cleanup check")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("no-cleanup", rootCmd.PersistentFlags().Lookup("no-cleanup"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(subtaskCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(urgencyCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := kv.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := kv.Open(kv.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			}
			fmt.Printf("Workspace ready at %s\n", kv.Path(workspace))
			return nil
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskArchiveCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var title, desc, category, urgency, start, due string
	var subtasks []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				startAt, err := parseDateFlag(start)
				if err != nil {
					return err
				}
				dueAt, err := parseDateFlag(due)
				if err != nil {
					return err
				}
				t, err := e.AddTask(ctx, engine.TaskCreateOptions{
					Title:       title,
					Description: desc,
					CategoryID:  category,
					Urgency:     urgency,
					StartDate:   startAt,
					DueDate:     dueAt,
					Subtasks:    subtasks,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category id")
	cmd.Flags().StringVar(&urgency, "urgency", "", "urgency level id")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&subtasks, "subtask", []string{}, "subtask title (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f engine.Filters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks := e.Tasks(ctx, f)
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Urgency", "Category", "Due"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = t.DueDate.Format("2006-01-02")
					}
					cat := ""
					if t.CategoryID != "" {
						cat = e.ResolveCategory(ctx, t.CategoryID).Name
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Urgency, cat, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&f.Statuses, "status", []string{}, "status filter (repeatable)")
	cmd.Flags().StringArrayVar(&f.Categories, "category", []string{}, "category filter (repeatable)")
	cmd.Flags().StringArrayVar(&f.Urgencies, "urgency", []string{}, "urgency filter (repeatable)")
	cmd.Flags().StringVar(&f.Search, "search", "", "title/description substring")
	cmd.Flags().StringVar(&f.SortBy, "sort", "newest", "sort order (newest, oldest, dueDate, urgency, title)")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, category, urgency, status, start, due string
	var clearStart, clearDue bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts := engine.TaskUpdateOptions{
					ClearStartDate: clearStart,
					ClearDueDate:   clearDue,
				}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				if cmd.Flags().Changed("category") {
					opts.CategoryID = &category
				}
				if cmd.Flags().Changed("urgency") {
					opts.Urgency = &urgency
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("start") {
					at, err := parseDateFlag(start)
					if err != nil {
						return err
					}
					opts.StartDate = at
				}
				if cmd.Flags().Changed("due") {
					at, err := parseDateFlag(due)
					if err != nil {
						return err
					}
					opts.DueDate = at
				}
				t, err := e.UpdateTask(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category id")
	cmd.Flags().StringVar(&urgency, "urgency", "", "urgency level id")
	cmd.Flags().StringVar(&status, "status", "", "status (pending, completed, overdue)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearStart, "clear-start", false, "remove the start date")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CompleteTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task (moves to history)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteTask(ctx, args[0])
			})
		},
	}
	return cmd
}

func taskArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move all completed tasks to history now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				moved, err := e.ArchiveCompleted(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Archived %d completed task(s)\n", moved)
				return nil
			})
		},
	}
	return cmd
}

func subtaskCmd() *cobra.Command {
	sub := &cobra.Command{Use: "subtask", Short: "Manage subtasks"}
	sub.AddCommand(subtaskAddCmd())
	sub.AddCommand(subtaskToggleCmd())
	return sub
}

func subtaskAddCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add a subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.AddSubtask(ctx, args[0], title)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "subtask title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func subtaskToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <task-id> <subtask-id>",
		Short: "Toggle a subtask's completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.ToggleSubtask(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func categoryCmd() *cobra.Command {
	cat := &cobra.Command{Use: "category", Short: "Manage categories"}
	cat.AddCommand(categoryListCmd())
	cat.AddCommand(categoryAddCmd())
	cat.AddCommand(categoryUpdateCmd())
	cat.AddCommand(categoryDeleteCmd())
	return cat
}

func categoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				cats := e.Categories(ctx)
				if viper.GetBool("json") {
					return printJSON(cats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Color"})
				for _, c := range cats {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Color})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func categoryAddCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.AddCategory(ctx, name, color)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "category name")
	cmd.Flags().StringVar(&color, "color", "#9CA3AF", "hex color")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func categoryUpdateCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var namePtr, colorPtr *string
				if cmd.Flags().Changed("name") {
					namePtr = &name
				}
				if cmd.Flags().Changed("color") {
					colorPtr = &color
				}
				c, err := e.UpdateCategory(ctx, args[0], namePtr, colorPtr)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "category name")
	cmd.Flags().StringVar(&color, "color", "", "hex color")
	return cmd
}

func categoryDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteCategory(ctx, args[0])
			})
		},
	}
	return cmd
}

func urgencyCmd() *cobra.Command {
	urg := &cobra.Command{Use: "urgency", Short: "Manage urgency levels"}
	urg.AddCommand(urgencyListCmd())
	urg.AddCommand(urgencyAddCmd())
	urg.AddCommand(urgencyUpdateCmd())
	urg.AddCommand(urgencyDeleteCmd())
	return urg
}

func urgencyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List urgency levels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				levels := e.UrgencyLevels(ctx)
				if viper.GetBool("json") {
					return printJSON(levels)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Priority", "Color"})
				for _, l := range levels {
					tw.AppendRow(table.Row{l.ID, l.Name, l.Priority, l.Color})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func urgencyAddCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an urgency level (ranked after existing ones)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				l, err := e.AddUrgencyLevel(ctx, name, color)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "level name")
	cmd.Flags().StringVar(&color, "color", "#9CA3AF", "hex color")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func urgencyUpdateCmd() *cobra.Command {
	var name, color string
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an urgency level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var namePtr, colorPtr *string
				var prioPtr *int
				if cmd.Flags().Changed("name") {
					namePtr = &name
				}
				if cmd.Flags().Changed("color") {
					colorPtr = &color
				}
				if cmd.Flags().Changed("priority") {
					prioPtr = &priority
				}
				l, err := e.UpdateUrgencyLevel(ctx, args[0], namePtr, colorPtr, prioPtr)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "level name")
	cmd.Flags().StringVar(&color, "color", "", "hex color")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (lower is more urgent)")
	return cmd
}

func urgencyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an urgency level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteUrgencyLevel(ctx, args[0])
			})
		},
	}
	return cmd
}

func settingsCmd() *cobra.Command {
	set := &cobra.Command{Use: "settings", Short: "Retention and cleanup settings"}
	set.AddCommand(settingsShowCmd())
	set.AddCommand(settingsSetCmd())
	return set
}

func settingsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return printJSONOrTable(e.Settings(ctx))
			})
		},
	}
	return cmd
}

func settingsSetCmd() *cobra.Command {
	var completedDays, overdueDays, historyMonths, historyFreq, cleanupFreq int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s := e.Settings(ctx)
				if cmd.Flags().Changed("completed-retention-days") {
					s.CompletedTaskRetentionDays = completedDays
				}
				if cmd.Flags().Changed("overdue-retention-days") {
					s.OverdueTaskRetentionDays = overdueDays
				}
				if cmd.Flags().Changed("history-retention-months") {
					s.HistoryRetentionMonths = historyMonths
				}
				if cmd.Flags().Changed("history-cleanup-frequency-days") {
					s.HistoryCleanupFrequencyDays = historyFreq
				}
				if cmd.Flags().Changed("cleanup-frequency-days") {
					s.CleanupFrequencyDays = cleanupFreq
				}
				updated, err := e.UpdateSettings(ctx, s)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().IntVar(&completedDays, "completed-retention-days", 0, "days completed tasks stay active (0 = forever)")
	cmd.Flags().IntVar(&overdueDays, "overdue-retention-days", 0, "days overdue tasks stay active (0 = forever)")
	cmd.Flags().IntVar(&historyMonths, "history-retention-months", 0, "months history is kept (0 = forever)")
	cmd.Flags().IntVar(&historyFreq, "history-cleanup-frequency-days", 0, "days between history purges")
	cmd.Flags().IntVar(&cleanupFreq, "cleanup-frequency-days", 0, "days between scheduled cleanups (0 = manual only)")
	return cmd
}

func cleanupCmd() *cobra.Command {
	cln := &cobra.Command{Use: "cleanup", Short: "Lifecycle cleanup"}
	cln.AddCommand(cleanupRunCmd())
	return cln
}

func cleanupRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run cleanup now, ignoring the schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.RunCleanup(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func historyCmd() *cobra.Command {
	hist := &cobra.Command{Use: "history", Short: "Task history"}
	hist.AddCommand(historyListCmd())
	return hist
}

func historyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				history := e.History(ctx)
				if viper.GetBool("json") {
					return printJSON(history)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Reason", "Deleted", "Retained Until"})
				for _, h := range history {
					until := "forever"
					if !h.RetentionUntil.IsZero() {
						until = h.RetentionUntil.Format("2006-01-02")
					}
					tw.AppendRow(table.Row{h.ID, h.Task.Title, h.DeletionReason, h.DeletedAt.Format("2006-01-02"), until})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Lifetime statistics across active tasks and history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				st := e.HistoricalStats(ctx)
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("Tasks: %d total, %d completed (%.0f%%), %d active, %d in history\n",
					st.Total, st.Completed, st.CompletionRate*100, st.ActiveTotal, st.HistoryTotal)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Total", "Completed", "Rate"})
				for _, g := range st.ByCategory {
					tw.AppendRow(table.Row{g.Name, g.Total, g.Completed, fmt.Sprintf("%.0f%%", g.Rate*100)})
				}
				tw.Render()
				tw = table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Urgency", "Total", "Completed", "Rate"})
				for _, g := range st.ByUrgency {
					tw.AppendRow(table.Row{g.Name, g.Total, g.Completed, fmt.Sprintf("%.0f%%", g.Rate*100)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: task changes, cleanup runs, and settings updates.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Events.Latest(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				authCfg := server.AuthConfig{
					JWTSecret: os.Getenv("TASKVAULT_JWT_SECRET"),
					DevLogin:  devLogin,
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving TaskVault API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the local token endpoint")
	return cmd
}

// --- helpers ---

// withEngine opens the workspace database, builds the engine and runs
// the scheduled cleanup check before handing off to the command.
func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := kv.Open(kv.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	e := engine.New(store.New(kv.NewSQLite(conn), log), cfg)
	e.Events = events.Writer{DB: conn}
	e.Log = log

	if !viper.GetBool("no-cleanup") {
		ran, res, err := e.MaybeRunScheduledCleanup(ctx)
		if err != nil {
			return err
		}
		if ran && res.Changed() {
			log.Info("scheduled cleanup ran",
				zap.Int("overdue_marked", res.OverdueMarked),
				zap.Int("moved_to_history", res.CompletedMovedToHistory+res.OverdueMovedToHistory),
				zap.Int("history_cleaned", res.HistoryCleaned),
			)
		}
	}
	return fn(ctx, e)
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func parseDateFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	at, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return &at, nil
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
