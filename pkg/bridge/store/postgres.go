package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/agenix-ai/voicebridge/pkg/bridge/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres stores each session as one JSONB row keyed by call sid, for
// deployments that already run Postgres instead of Redis. The single-row
// upsert keeps the whole-record atomicity contract.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate brings the sessions schema up to date using the embedded goose
// migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate sessions schema: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, callSID string) (*session.Session, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM call_sessions WHERE call_sid = $1`, callSID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres select: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", callSID, err)
	}
	return &s, nil
}

func (p *Postgres) Save(ctx context.Context, callSID string, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", callSID, err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO call_sessions (call_sid, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (call_sid) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		callSID, data,
	)
	if err != nil {
		return fmt.Errorf("postgres upsert: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, callSID string) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM call_sessions WHERE call_sid = $1`, callSID,
	); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
