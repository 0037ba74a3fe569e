package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docketline/internal/classify"
	"docketline/internal/config"
	"docketline/internal/docket"
	"docketline/internal/domain"
	"docketline/internal/extract"
	"docketline/internal/flow"
	"docketline/internal/logging"
	"docketline/internal/server"
	"docketline/internal/sheet/gsheets"
	"docketline/internal/state"
	"docketline/internal/transport"
)

var rootCmd = &cobra.Command{
	Use:   "docketline",
	Short: "Docketline CLI",
	Long: `Docketline runs a court docket in a shared spreadsheet and drives its
lifecycle through chat interactions.
- Filings arrive in a submission channel, get classified, and wait for
  reviewer approval before they are docketed.
- Accepted cases are offered to judges by direct message until one
  accepts; declines rotate to the next candidate.
- Reviewers manage pending cases from an interactive board: edit,
  reassign, toggle the trial stage, finish into the case log, delete.
- Every step is written to a local event log; pending controls survive
  process restarts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := state.EnsureWorkspace(viper.GetString("workspace"))
		return err
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
	viper.SetEnvPrefix("DOCKETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(casesCmd())
	rootCmd.AddCommand(counterCmd())
	rootCmd.AddCommand(judgesCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var sheetID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default docketline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sheetID == "" {
				return fmt.Errorf("--sheet-id required")
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(sheetID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetID, "sheet-id", "", "spreadsheet id")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func casesCmd() *cobra.Command {
	cases := &cobra.Command{Use: "cases", Short: "Inspect and manage the pending docket"}
	cases.AddCommand(casesListCmd())
	cases.AddCommand(casesShowCmd())
	cases.AddCommand(casesAddCmd())
	return cases
}

func casesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *docket.Store, _ *config.Config) error {
				cases, res := s.ListCases(ctx)
				if !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				if viper.GetBool("json") {
					return printJSON(cases)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Number", "Name", "Judge", "Status", "Filed"})
				for _, c := range cases {
					tw.AppendRow(table.Row{c.Number, c.Name, c.Judge, c.StatusText, c.FilingDate})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func casesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-number>",
		Short: "Show one pending case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *docket.Store, _ *config.Config) error {
				c, res := s.FindCase(ctx, args[0])
				if !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				return printJSON(c)
			})
		},
	}
}

func casesAddCmd() *cobra.Command {
	var name, number, judge, status, date, link string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Docket a case directly, bypassing review",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || number == "" {
				return fmt.Errorf("--name and --number required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *flow.Engine) error {
				res := e.AddCase(ctx, domain.Case{
					Name:       name,
					Number:     number,
					Judge:      judge,
					StatusText: status,
					FilingDate: date,
					FilingLink: link,
				}, viper.GetString("actor-id"))
				if !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				fmt.Println("docketed", number)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "case name")
	cmd.Flags().StringVar(&number, "number", "", "case number")
	cmd.Flags().StringVar(&judge, "judge", "", "assigned judge (default NA)")
	cmd.Flags().StringVar(&status, "status", "", "case status (default PT Not assigned)")
	cmd.Flags().StringVar(&date, "date", "", "filing date MM/DD/YYYY (default today)")
	cmd.Flags().StringVar(&link, "link", "", "filing document URL")
	return cmd
}

func counterCmd() *cobra.Command {
	counter := &cobra.Command{Use: "counter", Short: "Case number counters"}
	counter.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the next criminal and civil case numbers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *docket.Store, _ *config.Config) error {
				crim, res := s.NextCaseNumber(ctx, domain.TypeCriminal)
				if !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				civ, res := s.NextCaseNumber(ctx, domain.TypeCivil)
				if !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"criminal": crim, "civil": civ})
				}
				fmt.Println("criminal:", crim)
				fmt.Println("civil:   ", civ)
				return nil
			})
		},
	})
	return counter
}

func judgesCmd() *cobra.Command {
	judges := &cobra.Command{Use: "judges", Short: "Judge roster"}
	judges.AddCommand(judgesListCmd())
	judges.AddCommand(judgesSetAvailabilityCmd())
	return judges
}

func judgesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roster judges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *docket.Store, _ *config.Config) error {
				judges, res := s.Judges(ctx)
				if !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				if viper.GetBool("json") {
					return printJSON(judges)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Status", "Availability", "Chat ID"})
				for _, j := range judges {
					tw.AppendRow(table.Row{j.Name, j.Status, j.Availability, j.ChatID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func judgesSetAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-availability <judge-name> <Active|Unavailable>",
		Short: "Set whether a judge may receive assignments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *docket.Store, _ *config.Config) error {
				if res := s.SetJudgeAvailability(ctx, args[0], args[1]); !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				fmt.Println(args[0], "is now", args[1])
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Workflow event log",
		Long:  "The diary of everything that happened: filings, acceptances, assignments, dispositions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent workflow events",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := state.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer st.Close()
			events, err := st.RecentEvents(cmd.Context(), n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "TS", "Type", "Case", "Actor"})
			for _, e := range events {
				tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.CaseNumber, e.ActorID})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "num", "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, logFormat string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(slog.LevelInfo, logFormat)
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			st, err := state.Open(workspace)
			if err != nil {
				return err
			}
			defer st.Close()

			client, err := gsheets.New(cmd.Context(), cfg.Sheet.ID, cfg.Sheet.CredentialsFile)
			if err != nil {
				return err
			}
			store, err := docket.New(client, cfg)
			if err != nil {
				return err
			}

			if cfg.Gateway.URL == "" {
				return fmt.Errorf("config.gateway.url is required to deliver chat messages")
			}
			msg := transport.NewWebhook(cfg.Gateway.URL, cfg.Gateway.Secret, cfg.Gateway.TimeoutSeconds)

			engine := flow.New(flow.Engine{
				Store:      store,
				State:      st,
				Msg:        msg,
				Classifier: buildClassifier(cfg),
				Extractor:  buildExtractor(cmd.Context(), cfg),
				Pool:       buildPool(cfg, store),
				Cfg:        cfg,
			})

			events := make(chan transport.Event, 256)
			runDone := make(chan struct{})
			go func() {
				defer close(runDone)
				if err := engine.Run(cmd.Context(), events); err != nil {
					logging.New("main").Error("event loop", "error", err)
				}
			}()

			jwtSecret := cfg.Server.JWTSecret
			if jwtSecret == "" {
				jwtSecret = os.Getenv("DOCKETLINE_JWT_SECRET")
			}
			if jwtSecret == "" {
				return fmt.Errorf("server.jwt_secret or DOCKETLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   engine,
				Store:    store,
				State:    st,
				App:      cfg,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: jwtSecret},
				Events:   events,
			})
			if err != nil {
				return err
			}

			listenAddr := addr
			if listenAddr == "" {
				listenAddr = cfg.Server.Addr
			}
			srv := &http.Server{Addr: listenAddr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Docketline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", listenAddr, basePath)
			serveErr := srv.ListenAndServe()
			close(events)
			<-runDone
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return serveErr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	return cmd
}

func buildClassifier(cfg *config.Config) classify.Classifier {
	if cfg.Classifier.TestingResult {
		return classify.Static{Info: domain.CaseInfo{
			Success: true,
			Name:    "Test v. Test",
			Type:    domain.TypeCriminal,
		}}
	}
	return classify.NewHTTP(cfg.Classifier.Endpoint, cfg.Classifier.Model)
}

func buildExtractor(ctx context.Context, cfg *config.Config) extract.Extractor {
	if cfg.Sheet.CredentialsFile == "" {
		return extract.Null{}
	}
	docs, err := extract.NewGoogleDocs(ctx, cfg.Sheet.CredentialsFile)
	if err != nil {
		logging.New("main").Warn("document extractor unavailable, filings fall back to message text", "error", err)
		return extract.Null{}
	}
	return docs
}

func buildPool(cfg *config.Config, store *docket.Store) flow.JudgePool {
	if cfg.Judges.Source == "roster" {
		refresh := time.Duration(cfg.Judges.RefreshIntervalSeconds) * time.Second
		return flow.NewRosterPool(store, flow.NewClock(), refresh)
	}
	return flow.NewStaticPool(cfg)
}

func withStore(ctx context.Context, fn func(context.Context, *docket.Store, *config.Config) error) error {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	client, err := gsheets.New(ctx, cfg.Sheet.ID, cfg.Sheet.CredentialsFile)
	if err != nil {
		return err
	}
	store, err := docket.New(client, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, store, cfg)
}

func withEngine(ctx context.Context, fn func(context.Context, *flow.Engine) error) error {
	return withStore(ctx, func(ctx context.Context, store *docket.Store, cfg *config.Config) error {
		st, err := state.Open(viper.GetString("workspace"))
		if err != nil {
			return err
		}
		defer st.Close()
		engine := flow.New(flow.Engine{
			Store: store,
			State: st,
			Cfg:   cfg,
		})
		return fn(ctx, engine)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
