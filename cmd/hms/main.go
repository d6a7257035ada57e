package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/app"
	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/telemetry"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hms",
		Short:        "Hospital management system: edge gateway and internal services",
		SilenceUsage: true,
	}
	root.AddCommand(gatewayCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())
	return root
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the edge gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway()
		},
	}
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg, "gateway")
	if err := cfg.ValidateGateway(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load policy")
		return err
	}

	e, closer, err := app.NewGateway(cfg, policy, logger, telemetry.NewMetrics("gateway"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to build gateway")
		return err
	}
	defer closer.Close()

	return app.Serve(e, ":"+cfg.Port, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "serve <service>",
		Short:     "Start an internal service (patient, doctor, appointment, medical-record)",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: app.Services,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(args[0])
		},
	}
}

func runService(name string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg, name)
	if err := cfg.ValidateService(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  name,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e, err := app.NewService(app.ServiceOptions{
		Name:              name,
		Logger:            logger,
		Pool:              pool,
		Metrics:           telemetry.NewMetrics(name),
		Asserter:          auth.NewAsserter([]byte(cfg.InternalAssertionKey)),
		RequestTimeout:    cfg.RequestTimeout,
		PatientServiceURL: config.PrimaryURL(cfg.PatientServiceURL),
		DoctorServiceURL:  config.PrimaryURL(cfg.DoctorServiceURL),
		LookupTimeout:     cfg.LookupTimeout,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to build service")
		return err
	}

	return app.Serve(e, ":"+cfg.Port, logger)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations of one service",
	}
	cmd.PersistentFlags().String("service", "", "Service whose migrations to run (patient, doctor, appointment, medical-record)")
	cmd.PersistentFlags().String("dir", "./migrations", "Path to the migrations root directory")

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(cmd *cobra.Command) (*db.Migrator, func(), error) {
	service, _ := cmd.Flags().GetString("service")
	dir, _ := cmd.Flags().GetString("dir")
	if !slices.Contains(app.Services, service) {
		return nil, nil, fmt.Errorf("--service must be one of %v", app.Services)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(cmd.Context(), db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: 2,
		AppName:  "migrate-" + service,
	})
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrations for service: %s\n", service)
	return db.NewMigrator(pool, db.ServiceMigrationsDir(dir, service)), pool.Close, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development credential with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			roleFlag, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("token is a development helper and is disabled in production")
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			role, ok := auth.ParseRole(roleFlag)
			if !ok {
				return fmt.Errorf("unknown role %q", roleFlag)
			}

			token, err := auth.SignHS256([]byte(cfg.JWTSecret), auth.Principal{Email: email, Role: role}, cfg.AuthIssuer, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Subject email")
	cmd.Flags().String("role", string(auth.RolePatient), "PATIENT, DOCTOR or ADMIN")
	cmd.Flags().Duration("ttl", time.Hour, "Credential lifetime")
	return cmd
}
