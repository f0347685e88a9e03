package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerkit/ledgerkit/internal/infra/postgres"
	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/internal/recon/source"
	"github.com/ledgerkit/ledgerkit/pkg/config"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

var (
	flagSource    string
	flagDate      string
	flagFilePath  string
	flagBaseURL   string
	flagAuthToken string
)

func main() {
	root := &cobra.Command{
		Use:          "recon",
		Short:        "Reconciliation tooling for the ledger",
		SilenceUsage: true,
	}
	root.AddCommand(newRunReconCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunReconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-recon",
		Short: "Run reconciliation for one date against one external source",
		RunE:  runRecon,
	}

	cmd.Flags().StringVar(&flagSource, "source", "", "external source: csv, bank_csv, api or payment_processor")
	cmd.Flags().StringVar(&flagDate, "date", "", "reconciliation date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flagFilePath, "file_path", "", "path to the source file (csv, bank_csv)")
	cmd.Flags().StringVar(&flagBaseURL, "base_url", "", "external API base URL (api, payment_processor)")
	cmd.Flags().StringVar(&flagAuthToken, "auth_token", "", "bearer token for the external API")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func runRecon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	date, err := time.Parse("2006-01-02", flagDate)
	if err != nil {
		return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", flagDate)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewDefault(cfg.Env)

	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	reconRepo := postgres.NewReconRepository(db)
	engine := recon.NewEngine(reconRepo, reconRepo, map[string]recon.Source{
		"csv":               source.NewCSV(),
		"bank_csv":          source.NewBankCSV(),
		"api":               source.NewAPI(),
		"payment_processor": source.NewPaymentProcessor(),
	}, recon.MatcherConfig{
		AmountTolerancePercent:    cfg.AmountTolerancePercent,
		TimestampToleranceSeconds: cfg.TimestampToleranceSecond,
		AmountWeight:              cfg.FuzzyWeights.Amount,
		TimestampWeight:           cfg.FuzzyWeights.Timestamp,
		MetadataWeight:            cfg.FuzzyWeights.Metadata,
		MinMatchScore:             cfg.MinMatchScore,
	}, log)

	params := recon.SourceParams{
		FilePath:  flagFilePath,
		BaseURL:   flagBaseURL,
		AuthToken: flagAuthToken,
	}
	if err := engine.ValidateSource(flagSource, params); err != nil {
		return err
	}

	jobID, err := engine.Run(ctx, date, flagSource, params)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	job, err := reconRepo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to read job result: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Reconciliation %s\n  job:       %s\n  external:  %d\n  ledger:    %d\n  matched:   %d\n  unmatched: %d\n",
		job.Status, job.ID, job.TotalExternalTxns, job.TotalLedgerTxns, job.MatchedCount, job.UnmatchedCount)
	return nil
}
