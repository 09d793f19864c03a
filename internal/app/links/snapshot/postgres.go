package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore 把快照存在 snapshots 表的单行里（见 migrations/0001_init.sql）。
//
// 这不是把集合摊平成关系表：契约仍然是“一个键、一个 blob、整体替换”，
// 只是借 Postgres 拿到持久化和备份。单行 UPDATE 在 PG 里是原子的。
type PostgresStore struct {
	db   *pgxpool.Pool
	name string
}

func NewPostgresStore(db *pgxpool.Pool, name string) *PostgresStore {
	if name == "" {
		name = "shortd"
	}
	return &PostgresStore{db: db, name: name}
}

func (p *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var data []byte
	err := p.db.QueryRow(dbctx, "SELECT data FROM snapshots WHERE name=$1", p.name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return data, nil
}

func (p *PostgresStore) Save(ctx context.Context, data []byte) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := p.db.Exec(dbctx, `
INSERT INTO snapshots (name, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`, p.name, data)
	return err
}
