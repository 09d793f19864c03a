package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Consumer 批量消费点击事件写入 click_stats 明细表。
//
// 刻意不碰任何计数：ClickCount 在核心的访问路径里已经同步 +1，
// 这里再加一次就会重复计数。
type Consumer struct {
	db        *pgxpool.Pool
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(db *pgxpool.Pool, collector *ChannelCollector) *Consumer {
	return &Consumer{
		db:        db,
		collector: collector,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Run 阻塞消费直到 ctx 取消或收集器关闭。
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]ClickEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush(batch)
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (c *Consumer) flush(batch []ClickEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := c.db.Begin(ctx)
	if err != nil {
		slog.Error("click stats: begin tx failed", "err", err)
		return
	}
	defer tx.Rollback(context.Background())

	for _, e := range batch {
		if _, err := tx.Exec(ctx,
			`INSERT INTO click_stats (link_id,slug,clicked_at,ip,user_agent,referer) VALUES ($1,$2,$3,$4,$5,$6)`,
			e.LinkID, e.Slug, e.ClickedAt, e.IP, e.UserAgent, e.Referer); err != nil {
			slog.Error("click stats: insert failed", "err", err, "link_id", e.LinkID)
			continue
		}
	}

	if err := tx.Commit(ctx); err != nil {
		slog.Error("click stats: commit failed", "err", err)
	} else {
		slog.Debug("click stats: flushed", "count", len(batch))
	}
}
