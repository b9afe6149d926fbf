package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"agroguard/pkg/client"
	"agroguard/pkg/db"
	"agroguard/pkg/risk"
	"agroguard/pkg/s3"
	"agroguard/services/archive"
)

// toolConfig is the slice of the environment the CLI needs.
type toolConfig struct {
	DBDSN        string `env:"DB_DSN"`
	AgeSecretKey string `env:"AGE_SECRET_KEY"`
	AgePublicKey string `env:"AGE_PUBLIC_KEY"`
	S3           s3.Config
}

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agroguardctl",
		Short:         "Operator utility for the agroguard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newArchiveCommand())
	cmd.AddCommand(newClassifyCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfig(ctx context.Context) (toolConfig, error) {
	var cfg toolConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return toolConfig{}, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

func newArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Signed report archive operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newArchiveBuildCommand())
	cmd.AddCommand(newArchiveVerifyCommand())
	return cmd
}

func newArchiveBuildCommand() *cobra.Command {
	var (
		apiURL   string
		email    string
		password string
		output   string
		bucket   string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Download every report of a user into a signed tar.zst",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			signer, err := archive.NewSigner(cfg.AgeSecretKey, cfg.AgePublicKey)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("AGROGUARD_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or AGROGUARD_PASSWORD is required")
			}

			c, err := client.New(apiURL)
			if err != nil {
				return err
			}
			if _, err := c.Login(ctx, email, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			defer func() { _ = c.Logout(ctx) }()

			build := archive.BuildConfig{
				Source: c,
				Owner:  strings.ToLower(strings.TrimSpace(email)),
				Output: output,
				Signer: signer,
				Stdout: cmd.OutOrStdout(),
			}
			if bucket != "" {
				objects, err := s3.New(ctx, cfg.S3)
				if err != nil {
					return fmt.Errorf("s3 client: %w", err)
				}
				build.Objects = objects
				build.Bucket = bucket
			}
			_, err = archive.Build(ctx, build)
			return err
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "Base URL of the agroguard API (e.g. https://api.example.com)")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (defaults to AGROGUARD_PASSWORD)")
	cmd.Flags().StringVar(&output, "out", "", "Destination archive file (tar.zst)")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Optional S3 bucket to upload the archive to")
	_ = cmd.MarkFlagRequired("api")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newArchiveVerifyCommand() *cobra.Command {
	var archiveFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the signature and digests of an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			signer, err := archive.NewSigner(cfg.AgeSecretKey, cfg.AgePublicKey)
			if err != nil {
				return err
			}
			manifest, err := archive.Verify(ctx, archiveFile, signer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archive ok: %d entries signed at %s\n", len(manifest.Entries), manifest.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}

	cmd.Flags().StringVar(&archiveFile, "file", "", "Path to the archive tar.zst")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newClassifyCommand() *cobra.Command {
	var hours, mtbf float64

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Print the risk assessment for a usage counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := risk.Classify(hours, mtbf)
			if err != nil {
				return err
			}
			out := map[string]any{
				"assessment":             a,
				"risk_score":             a.RiskScore(),
				"failure_forecast":       a.FailureForecast(),
				"failure_probability_5d": a.FailureProbability(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().Float64Var(&hours, "hours", 0, "Hours used")
	cmd.Flags().Float64Var(&mtbf, "mtbf", 0, "Mean time between failures, in hours")
	_ = cmd.MarkFlagRequired("mtbf")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to DB_DSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.DBDSN) == "" {
				return errors.New("DB_DSN is required")
			}
			pool, err := db.Open(ctx, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close()
			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
