package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ClickDetail struct {
	ID        int64     `json:"id"` // 下一页查询的分页 cursor
	ClickedAt time.Time `json:"clicked_at"`
	Referer   string    `json:"referer"`
	UserAgent string    `json:"user_agent"`
}

type DetailPage struct {
	RecentClicks []ClickDetail `json:"recent_clicks"`
	NextCursor   *int64        `json:"next_cursor,omitempty"`
}

// Reader 查询点击明细（cursor 分页，id 倒序）。总点击数不在这里：
// 权威计数是快照里的 Link.ClickCount，由调用方补进响应。
type Reader struct {
	db *pgxpool.Pool
}

func NewReader(db *pgxpool.Pool) *Reader {
	return &Reader{db: db}
}

func (r *Reader) ListByLink(ctx context.Context, linkID string, limit int, cursor int64) (*DetailPage, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rows pgx.Rows
	var err error
	if cursor == 0 {
		rows, err = r.db.Query(dbctx,
			`SELECT id,clicked_at,referer,user_agent FROM click_stats WHERE link_id = $1 ORDER BY id DESC LIMIT $2`,
			linkID, limit)
	} else {
		rows, err = r.db.Query(dbctx,
			`SELECT id,clicked_at,referer,user_agent FROM click_stats WHERE link_id = $1 AND id<$2 ORDER BY id DESC LIMIT $3`,
			linkID, cursor, limit)
	}
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var clicks []ClickDetail
	for rows.Next() {
		var item ClickDetail
		if err := rows.Scan(&item.ID, &item.ClickedAt, &item.Referer, &item.UserAgent); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		clicks = append(clicks, item)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}

	var next *int64
	if len(clicks) == limit {
		next = &clicks[len(clicks)-1].ID
	}
	return &DetailPage{RecentClicks: clicks, NextCursor: next}, nil
}
