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

	"coverplan/internal/app"
	"coverplan/internal/calendar"
	"coverplan/internal/config"
	"coverplan/internal/coverage"
	"coverplan/internal/csvio"
	"coverplan/internal/db"
	"coverplan/internal/domain"
	"coverplan/internal/migrate"
	"coverplan/internal/repo"
	"coverplan/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cov",
	Short: "Coverplan CLI",
	Long: `Coverplan evaluates staffing coverage for customers and regions.
- Roster: employees with a team and home country, imported from CSV.
- Requirements: customers and regions demand a minimum available headcount
  per team; a region additionally restricts the pool to its countries.
- Leave: vacations, company holidays and public holidays imported from
  calendar event dumps; each interval is a half-open day range.
- Report: per entity and day the coverage is covered, warning (at the
  minimum, no slack) or critical (below the minimum).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
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
	viper.SetEnvPrefix("COVERPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(customerCmd())
	rootCmd.AddCommand(regionCmd())
	rootCmd.AddCommand(leaveCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func rosterCmd() *cobra.Command {
	roster := &cobra.Command{Use: "roster", Short: "Import and export the roster"}
	roster.AddCommand(rosterImportCmd())
	roster.AddCommand(rosterExportCmd())
	roster.AddCommand(rosterTemplateCmd())
	return roster
}

func rosterImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the roster from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer f.Close()
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				snap, err := p.ImportRoster(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{
					"employees": len(snap.Employees),
					"customers": len(snap.Customers),
					"regions":   len(snap.Regions),
				})
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to roster CSV")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func rosterExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored roster as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				snap, err := p.Repo.LoadSnapshot(ctx)
				if err != nil {
					return err
				}
				return csvio.Export(os.Stdout, csvio.Roster{
					Employees: snap.Employees,
					Customers: snap.Customers,
					Regions:   snap.Regions,
				})
			})
		},
	}
	return cmd
}

func rosterTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print the roster CSV template",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(csvio.Template)
			return nil
		},
	}
	return cmd
}

func employeeCmd() *cobra.Command {
	emp := &cobra.Command{Use: "employee", Short: "Manage employees"}
	emp.AddCommand(employeeAddCmd())
	emp.AddCommand(employeeListCmd())
	emp.AddCommand(employeeDeleteCmd())
	return emp
}

func employeeAddCmd() *cobra.Command {
	var e domain.Employee
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			e.Country = strings.ToLower(e.Country)
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				res, err := p.AddEmployee(ctx, e)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&e.Name, "name", "", "employee name")
	cmd.Flags().StringVar(&e.Team, "team", "", "team name")
	cmd.Flags().StringVar(&e.Country, "country", "", "home country code")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func employeeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEmployees(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Team", "Country"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.Name, e.Team, strings.ToUpper(e.Country)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func employeeDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteEmployee(ctx, args[0])
			})
		},
	}
	return cmd
}

func customerCmd() *cobra.Command {
	cust := &cobra.Command{Use: "customer", Short: "Manage customers"}
	cust.AddCommand(customerAddCmd())
	cust.AddCommand(customerListCmd())
	return cust
}

func customerAddCmd() *cobra.Command {
	var c domain.Customer
	var teams []string
	var min int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a customer with one requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Country = strings.ToLower(c.Country)
			for _, team := range teams {
				c.Requirements = append(c.Requirements, domain.Requirement{Teams: []string{team}, Min: min})
			}
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				res, err := p.AddCustomer(ctx, c)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&c.Name, "name", "", "customer name")
	cmd.Flags().StringVar(&c.Country, "country", "", "country code")
	cmd.Flags().StringArrayVar(&teams, "team", []string{}, "required team (repeatable)")
	cmd.Flags().IntVar(&min, "min", 1, "minimum available per team")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func customerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCustomers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func regionCmd() *cobra.Command {
	reg := &cobra.Command{Use: "region", Short: "Manage regions"}
	reg.AddCommand(regionAddCmd())
	reg.AddCommand(regionListCmd())
	return reg
}

func regionAddCmd() *cobra.Command {
	var r domain.Region
	var countries, teams []string
	var min int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a region with one requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range countries {
				r.Countries = append(r.Countries, strings.ToLower(c))
			}
			for _, team := range teams {
				r.Requirements = append(r.Requirements, domain.Requirement{Teams: []string{team}, Min: min})
			}
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				res, err := p.AddRegion(ctx, r)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&r.Name, "name", "", "region name")
	cmd.Flags().StringArrayVar(&countries, "country", []string{}, "member country code (repeatable)")
	cmd.Flags().StringArrayVar(&teams, "team", []string{}, "required team (repeatable)")
	cmd.Flags().IntVar(&min, "min", 1, "minimum available per team")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func regionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List regions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRegions(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func leaveCmd() *cobra.Command {
	leave := &cobra.Command{
		Use:   "leave",
		Short: "Import leave intervals",
		Long: `Leave intervals come from calendar event dumps (JSON arrays of events
with summary and start/end). Vacations carry the employee name after the first
colon of the summary; holiday calendars become public holidays for the given
countries or company holidays when no country is given.`,
	}
	leave.AddCommand(leaveVacationsCmd())
	leave.AddCommand(leaveHolidaysCmd())
	return leave
}

func leaveVacationsCmd() *cobra.Command {
	var filePath string
	var replace bool
	cmd := &cobra.Command{
		Use:   "import-vacations",
		Short: "Import vacation events",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEvents(filePath)
			if err != nil {
				return err
			}
			leaves, err := calendar.NormalizeVacations(events)
			if err != nil {
				return err
			}
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				if err := p.ImportLeave(ctx, leaves, replace); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"imported": len(leaves), "replaced": replace})
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to events JSON")
	cmd.Flags().BoolVar(&replace, "replace", false, "drop previously stored intervals first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func leaveHolidaysCmd() *cobra.Command {
	var filePath string
	var countries []string
	var replace bool
	cmd := &cobra.Command{
		Use:   "import-holidays",
		Short: "Import holiday events",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEvents(filePath)
			if err != nil {
				return err
			}
			leaves, err := calendar.NormalizeHolidays(events, countries)
			if err != nil {
				return err
			}
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				if err := p.ImportLeave(ctx, leaves, replace); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"imported": len(leaves), "replaced": replace})
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to events JSON")
	cmd.Flags().StringArrayVar(&countries, "country", []string{}, "country code the holidays apply to (repeatable); none means everyone")
	cmd.Flags().BoolVar(&replace, "replace", false, "drop previously stored intervals first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func evaluateCmd() *cobra.Command {
	var from, to, order string
	var includeCovered bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the coverage report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				opts := coverage.RunOptions{
					IncludeCovered: includeCovered || p.Config.Report.IncludeCovered,
					RegionsFirst:   p.Config.Report.RegionsFirst,
				}
				switch order {
				case "regions-first":
					opts.RegionsFirst = true
				case "customers-first":
					opts.RegionsFirst = false
				case "":
				default:
					return fmt.Errorf("invalid --order %q", order)
				}
				opts.From, opts.To = p.DefaultWindow()
				var err error
				if from != "" {
					if opts.From, err = time.Parse("2006-01-02", from); err != nil {
						return fmt.Errorf("invalid --from: %w", err)
					}
					opts.To = opts.From.AddDate(0, 0, p.Config.Window.Days)
				}
				if to != "" {
					if opts.To, err = time.Parse("2006-01-02", to); err != nil {
						return fmt.Errorf("invalid --to: %w", err)
					}
				}
				reports, stats, err := p.Report(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": reports, "stats": stats})
				}
				printReportTable(reports)
				fmt.Printf("%d day(s): %d critical, %d warning, %d covered\n",
					stats.Days, stats.Critical, stats.Warning, stats.Covered)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&to, "to", "", "window end day, exclusive (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&includeCovered, "include-covered", false, "also print fully covered entity-days")
	cmd.Flags().StringVar(&order, "order", "", "tie-break order: regions-first or customers-first")
	return cmd
}

func printReportTable(reports []domain.DayReport) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Day", "Entity", "Kind", "Status", "Summary"})
	for _, r := range reports {
		tw.AppendRow(table.Row{
			r.Day.Format("2006-01-02"),
			r.EntityName,
			r.EntityKind,
			statusTitle(r.Status),
			strings.Join(r.Summary, ", "),
		})
	}
	tw.Render()
	for _, r := range reports {
		if len(r.DetailLines) == 0 {
			continue
		}
		fmt.Printf("%s %s (%s):\n", r.Day.Format("2006-01-02"), r.EntityName, statusTitle(r.Status))
		for _, line := range r.DetailLines {
			fmt.Printf("  %s\n", line)
		}
	}
}

func statusTitle(s domain.Status) string {
	switch s {
	case domain.StatusCritical:
		return "Understaffed"
	case domain.StatusWarning:
		return "At Risk"
	default:
		return "Covered"
	}
}

func calendarCmd() *cobra.Command {
	cal := &cobra.Command{Use: "calendar", Short: "Calendar helpers"}
	cal.AddCommand(calendarIDCmd())
	return cal
}

func calendarIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id <country-code>",
		Short: "Print the public holiday calendar id for a roster country code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			id, ok := calendar.HolidayCalendarID(args[0], cfg.Calendar.HolidayCountryCodes)
			if !ok {
				return fmt.Errorf("no holiday calendar known for country %q", args[0])
			}
			fmt.Println(id)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default coverplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Audit event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, p app.Planner) error {
				handler, err := server.New(server.Config{Planner: p, BasePath: basePath})
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
				fmt.Printf("Serving Coverplan API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withPlanner(ctx context.Context, fn func(context.Context, app.Planner) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	return fn(ctx, app.New(conn, cfg, log.Sugar()))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func readEvents(path string) ([]calendar.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []calendar.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("invalid events JSON: %w", err)
	}
	return events, nil
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
