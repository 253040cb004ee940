// Package database はrepo2viralのPostgreSQL接続とスキーマ（users, identities,
// sessions, user_usage, content_history）のマイグレーションを扱う。
package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Tables はマイグレーションが作成するテーブル。作成順に並ぶ。
var Tables = []string{"users", "identities", "sessions", "user_usage", "content_history"}

// NewMigrator は埋め込みSQLをソースとするmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はスキーマを最新まで上げる。最新ならそのまま返る。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate schema (%s): %w", strings.Join(Tables, ", "), err)
	}

	return nil
}
