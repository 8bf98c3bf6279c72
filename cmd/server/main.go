package main

import (
	"context"
	"fmt"
	"os"

	"aiweb-backend-go/internal/config"
	"aiweb-backend-go/internal/db"
	"aiweb-backend-go/internal/logging"
	"aiweb-backend-go/internal/migrations"
	"aiweb-backend-go/internal/services"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "aiweb-server",
	Short: "Authenticated AI web backend",
	Long: `aiweb-server serves the chat, document, image and admin API.

Examples:
  aiweb-server                    # same as serve
  aiweb-server serve              # run migrations and start the HTTP server
  aiweb-server migrate            # apply pending migrations and exit
  aiweb-server signup-code -d 14  # issue a signup code valid for 14 days`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := open()
		if err != nil {
			return err
		}
		defer rt.close()
		applied, err := migrations.Apply(rt.db, rt.dialect)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		if len(applied) == 0 {
			fmt.Println("database is up to date")
			return nil
		}
		for _, version := range applied {
			fmt.Printf("applied %s\n", version)
		}
		return nil
	},
}

var signupCodeDays int

var signupCodeCmd = &cobra.Command{
	Use:   "signup-code",
	Short: "Issue a single-use signup code",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := open()
		if err != nil {
			return err
		}
		defer rt.close()
		if _, err := migrations.Apply(rt.db, rt.dialect); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		tokens := services.TokenService{Secret: []byte(rt.cfg.SecretKey), TTL: rt.cfg.SessionTTL}
		directory := services.NewDirectory(rt.db, tokens, nil)
		code, err := directory.CreateSignupCode(cmd.Context(), signupCodeDays)
		if err != nil {
			return fmt.Errorf("signup code: %s", services.PublicMessage(err))
		}
		fmt.Printf("%s (expires %s)\n", code.Code, code.ExpiresAt.Format("2006-01-02 15:04 MST"))
		return nil
	},
}

func init() {
	signupCodeCmd.Flags().IntVarP(&signupCodeDays, "days", "d", services.DefaultSignupCodeDays, "days until the code expires (1-365)")
	rootCmd.AddCommand(serveCmd, migrateCmd, signupCodeCmd)
}

// runtime is what every command needs: configuration, a logger and the
// database.
type runtime struct {
	cfg     config.Config
	log     *zap.Logger
	db      *sqlx.DB
	dialect string
	cleanup func()
}

func (rt *runtime) close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
	rt.cleanup()
}

func open() (*runtime, error) {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, cleanup, err := logging.New(logging.Options{
		Level:         cfg.LogLevel,
		Format:        cfg.LogFormat,
		Dir:           cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	database, dialect, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("db: %w", err)
	}
	return &runtime{cfg: cfg, log: logger, db: database, dialect: dialect, cleanup: cleanup}, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
