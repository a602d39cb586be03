package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"iaq-analysis/internal/config"
	"iaq-analysis/internal/observability/metrics"
	"iaq-analysis/internal/observability/tracing"
	"iaq-analysis/internal/pipeline"
	"iaq-analysis/internal/report"
	"iaq-analysis/internal/scenario/domain"
	"iaq-analysis/internal/scenario/infrastructure/jsonfile"
	"iaq-analysis/internal/scenario/synth"
	"iaq-analysis/internal/store/memory"
	"iaq-analysis/internal/store/postgres"
)

var version = "dev"

const (
	sourceJSON     = "json"
	sourcePostgres = "postgres"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "iaq-analysis",
		Short:         "Bounded indoor air quality filtration analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func analyzeCmd() *cobra.Command {
	var (
		configPath string
		inputPath  string
		source     string
		pgDSN      string
		outDir     string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the analysis pipeline over a scenario summary table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := log.New(os.Stdout, "", log.LstdFlags)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if pgDSN != "" {
				cfg.PostgresDSN = pgDSN
			}
			if outDir != "" {
				cfg.StorageRoot = outDir
			}

			metrics.Init()
			shutdown, err := tracing.Init(ctx, tracing.Config{
				ServiceName:    cfg.ServiceName,
				ServiceVersion: version,
				Endpoint:       cfg.OTLPEndpoint,
				Insecure:       true,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Printf("tracing shutdown error: %v", err)
				}
			}()

			var repo *postgres.Repository
			if cfg.PostgresDSN != "" {
				db, err := sql.Open("pgx", cfg.PostgresDSN)
				if err != nil {
					return fmt.Errorf("db open error: %w", err)
				}
				defer db.Close()
				if err := db.PingContext(ctx); err != nil {
					return fmt.Errorf("db ping error: %w", err)
				}
				repo = postgres.NewRepository(db)
				if err := repo.EnsureSchema(ctx); err != nil {
					return fmt.Errorf("db schema error: %w", err)
				}
			}

			table, err := loadTable(ctx, source, inputPath, repo)
			if err != nil {
				return err
			}

			writer, err := report.NewWriter(cfg.StorageRoot, logger)
			if err != nil {
				return err
			}
			opts := []pipeline.Option{pipeline.WithReporter(writer)}
			if repo != nil {
				opts = append(opts, pipeline.WithStore(repo))
			} else {
				opts = append(opts, pipeline.WithStore(memory.NewResultStore()))
			}
			runner, err := pipeline.NewRunner(cfg, logger, opts...)
			if err != nil {
				return err
			}

			result, err := runner.Run(ctx, table)
			if err != nil {
				return err
			}
			if err := metrics.Push(ctx, cfg.PushgatewayURL, "iaq_analysis", result.RunID); err != nil {
				logger.Printf("metrics push error: %v", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s configurations=%d report=%s\n", result.RunID, result.Configurations, result.ReportPath)
			for i, row := range result.Efficacy {
				if i == 3 {
					break
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  #%d %s mean=%.2f best=%.2f worst=%.2f\n",
					row.Rank, row.Configuration(), row.MeanScore, row.BestCaseScore, row.WorstCaseScore)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults to $IAQ_CONFIG)")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Scenario summary JSON file")
	cmd.Flags().StringVar(&source, "source", sourceJSON, "Scenario source: json or postgres")
	cmd.Flags().StringVar(&pgDSN, "pg-dsn", "", "Postgres DSN (defaults to $PG_DSN)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Report storage root (defaults to $IAQ_STORAGE_ROOT)")
	return cmd
}

func loadTable(ctx context.Context, source, inputPath string, repo *postgres.Repository) (*domain.Table, error) {
	switch source {
	case sourceJSON:
		if inputPath == "" {
			return nil, fmt.Errorf("--input is required for source %s", sourceJSON)
		}
		return jsonfile.Load(inputPath)
	case sourcePostgres:
		if repo == nil {
			return nil, fmt.Errorf("--pg-dsn or PG_DSN is required for source %s", sourcePostgres)
		}
		return repo.LoadRuns(ctx)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

func generateCmd() *cobra.Command {
	var (
		outPath string
		pgDSN   string
		seed    int64
		hours   int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a deterministic synthetic scenario table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := synth.DefaultConfig()
			cfg.Seed = seed
			cfg.Hours = hours
			runs, err := synth.Generate(cfg)
			if err != nil {
				return err
			}

			if outPath == "" && pgDSN == "" {
				return jsonfile.Encode(cmd.OutOrStdout(), runs)
			}
			if outPath != "" {
				if err := jsonfile.Save(outPath, runs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d runs to %s\n", len(runs), outPath)
			}
			if pgDSN != "" {
				db, err := sql.Open("pgx", pgDSN)
				if err != nil {
					return fmt.Errorf("db open error: %w", err)
				}
				defer db.Close()
				repo := postgres.NewRepository(db)
				if err := repo.EnsureSchema(ctx); err != nil {
					return err
				}
				if err := repo.SaveRuns(ctx, runs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "seeded %d runs into scenario_runs\n", len(runs))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output JSON path (stdout when empty)")
	cmd.Flags().StringVar(&pgDSN, "pg-dsn", "", "Also seed scenario_runs in this Postgres database")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().IntVar(&hours, "hours", 8760, "Simulated hours per run")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
