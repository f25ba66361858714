package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/logger"
	"aliasmail/backend/migrations"
)

var (
	dbType string
	dbDSN  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage aliasmail database schema",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbType, "type", "", "database type: postgres, mysql or sqlite (default from config)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "dsn", "", "database DSN (default from config)")

	upCmd := &cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate, log *zap.Logger) error {
				if len(args) == 1 {
					n, err := parseSteps(args[0])
					if err != nil {
						return err
					}
					return ignoreNoChange(m.Steps(n), log)
				}
				return ignoreNoChange(m.Up(), log)
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (all when steps is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate, log *zap.Logger) error {
				if len(args) == 1 {
					n, err := parseSteps(args[0])
					if err != nil {
						return err
					}
					return ignoreNoChange(m.Steps(-n), log)
				}
				return ignoreNoChange(m.Down(), log)
			})
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate, log *zap.Logger) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	}

	rootCmd.AddCommand(upCmd, downCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withMigrator 解析数据库配置并创建迁移实例
func withMigrator(fn func(m *migrate.Migrate, log *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	typ := cfg.Database.Type
	if dbType != "" {
		typ = dbType
	}
	dsn := cfg.Database.DSN
	if dbDSN != "" {
		dsn = dbDSN
	}

	dir, url, err := migrationTarget(typ, dsn)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("failed to close migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	log.Info("running migrations", zap.String("type", typ), zap.String("dir", dir))
	return fn(m, log)
}

// migrationTarget 返回迁移脚本目录以及 golang-migrate 使用的数据库 URL
func migrationTarget(typ, dsn string) (dir, url string, err error) {
	if dsn == "" {
		return "", "", errors.New("database DSN is required")
	}

	switch typ {
	case config.DatabasePostgres:
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return "", "", errors.New("postgres DSN must be a postgres:// URL")
		}
		return "postgres", dsn, nil
	case config.DatabaseMySQL:
		url = "mysql://" + strings.TrimPrefix(dsn, "mysql://")
		// 迁移文件包含多条语句
		if !strings.Contains(url, "multiStatements=") {
			sep := "?"
			if strings.Contains(url, "?") {
				sep = "&"
			}
			url += sep + "multiStatements=true"
		}
		return "mysql", url, nil
	case config.DatabaseSQLite:
		return "sqlite", "sqlite3://" + strings.TrimPrefix(dsn, "sqlite3://"), nil
	case config.DatabaseMemory:
		return "", "", errors.New("memory storage has no schema to migrate")
	default:
		return "", "", fmt.Errorf("unsupported database type %q", typ)
	}
}

func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", s)
	}
	return n, nil
}

func ignoreNoChange(err error, log *zap.Logger) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to run")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
