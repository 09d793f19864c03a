// Package migrate 按文件名顺序执行 migrations 目录下的 SQL 文件，
// 并用 schema_migrations 表记录已执行的版本，保证重复运行安全。
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Result struct {
	Dir     string
	Applied []string
	Skipped []string
}

// Up 应用 dir 下所有尚未执行过的 .sql 文件。dir 为空时默认取工作目录下的 migrations/。
func Up(ctx context.Context, pool *pgxpool.Pool, dir string) (*Result, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "migrations"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("migrations dir not found: %s", abs)
	}

	if err := ensureVersionTable(ctx, pool); err != nil {
		return nil, err
	}

	files, err := sqlFiles(abs)
	if err != nil {
		return nil, err
	}

	res := &Result{Dir: abs}
	for _, name := range files {
		done, err := versionApplied(ctx, pool, name)
		if err != nil {
			return nil, err
		}
		if done {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := applyOne(ctx, pool, abs, name); err != nil {
			return nil, err
		}
		res.Applied = append(res.Applied, name)
	}
	return res, nil
}

func ensureVersionTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	return err
}

func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func versionApplied(ctx context.Context, pool *pgxpool.Pool, version string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	return exists, err
}

func applyOne(ctx context.Context, pool *pgxpool.Pool, dir, name string) error {
	sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	// 整个文件在一个事务里执行。文件本身尽量用 IF NOT EXISTS 保持幂等。
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1,$2)`, name, time.Now()); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit(ctx)
}
