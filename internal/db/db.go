package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"rag-playground/internal/config"
	"rag-playground/internal/models"
)

// File is one stored chunk. The embedding column has no fixed dimension.
type File struct {
	bun.BaseModel `bun:"table:files,alias:f"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Data          string          `bun:"data,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver and pings it, so a
// bad address or credentials fail here rather than on first use.
func ConnectDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	var sqldb *sql.DB
	switch cfg.Driver {
	case config.DriverPQ:
		var err error
		sqldb, err = sql.Open("postgres", pqDSN(cfg))
		if err != nil {
			return nil, err
		}
	default:
		sqldb = sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithAddr(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
			pgdriver.WithUser(cfg.User),
			pgdriver.WithPassword(cfg.Password),
			pgdriver.WithDatabase(cfg.Name),
			pgdriver.WithInsecure(cfg.SSLMode == "disable"),
			pgdriver.WithDialTimeout(cfg.ConnectTimeout),
		))
	}

	// the CLI holds one connection for its whole run
	sqldb.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sqldb.PingContext(pingCtx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	log.Debug().Str("driver", cfg.Driver).Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Name).Msg("Connected to database")
	return sqldb, nil
}

func pqDSN(cfg *config.DatabaseConfig) string {
	kv := []struct{ k, v string }{
		{"host", cfg.Host},
		{"port", strconv.Itoa(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
		{"connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds()))},
	}
	parts := make([]string, 0, len(kv))
	for _, p := range kv {
		if p.v == "" {
			continue
		}
		parts = append(parts, p.k+"="+quoteDSNValue(p.v))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// InitDB enables pgvector and creates the files table if it is missing.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*File)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create files table: %w", err)
	}
	return nil
}

type searchRow struct {
	Data     string  `bun:"data"`
	Distance float64 `bun:"distance"`
}

// Store keeps chunks in Postgres and ranks them by Euclidean distance (<->).
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Insert writes one record in its own transaction.
func (s *Store) Insert(ctx context.Context, content string, embedding []float32) error {
	file := &File{
		Data:      content,
		Embedding: pgvector.NewVector(embedding),
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(file).Exec(ctx)
		return err
	})
	if err != nil {
		return &models.StoreError{Op: "insert", Err: err}
	}
	return nil
}

// Search returns the limit records closest to embedding, nearest first.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		return nil, models.ErrInvalidLimit
	}

	query := pgvector.NewVector(embedding)
	var rows []searchRow
	err := s.db.NewSelect().
		Model((*File)(nil)).
		Column("data").
		ColumnExpr("f.embedding <-> ?::vector AS distance", query).
		OrderExpr("distance ASC, f.id ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, &models.StoreError{Op: "search", Err: err}
	}

	results := make([]models.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = models.SearchResult{Content: r.Data, Distance: r.Distance}
	}
	return results, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
