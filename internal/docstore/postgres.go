// postgres.go — PostgreSQL реализация Store через pgxpool.
// Все коллекции живут в одной таблице documents (collection, id, doc jsonb).
// Схема создаётся embedded-миграциями golang-migrate.
package docstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresConfig — параметры подключения к PostgreSQL.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// dsn возвращает DSN для pgxpool.
func (c PostgresConfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// migrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c PostgresConfig) migrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// PostgresStore — document store поверх PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore подключается к PostgreSQL, применяет миграции
// и возвращает готовое хранилище.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if err := applyMigrations(cfg, logger); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Database),
	)

	return &PostgresStore{
		pool:   pool,
		logger: logger.With(slog.String("component", "docstore")),
	}, nil
}

// applyMigrations применяет SQL-миграции из embedded FS.
func applyMigrations(cfg PostgresConfig, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.migrateURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// Get возвращает документ по идентификатору или ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var doc json.RawMessage
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения документа %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Upsert вставляет или полностью перезаписывает документ.
func (s *PostgresStore) Upsert(ctx context.Context, collection, id string, doc json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, id, doc,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи документа %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete удаляет документ. Удаление несуществующего — не ошибка.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления документа %s/%s: %w", collection, id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List возвращает страницу документов в порядке создания.
func (s *PostgresStore) List(ctx context.Context, collection string, limit, offset int) ([]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM documents
		WHERE collection = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		collection, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка листинга коллекции %s: %w", collection, err)
	}
	defer rows.Close()

	var result []json.RawMessage
	for rows.Next() {
		var doc json.RawMessage
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации документов: %w", err)
	}
	return result, nil
}

// Ping проверяет доступность PostgreSQL.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close закрывает пул подключений.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ Store = (*PostgresStore)(nil)
