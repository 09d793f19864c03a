package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// MissCache 是 redirect 热路径上的本地“负缓存”。
//
// 只缓存“这个 slug 不存在”这一件事：404 流量（扫描、失效链接）不再进存储层的锁。
// 正向结果不缓存——点击计数必须每次都走存储（ClickCount 单调 +1 是核心不变量），
// 缓存命中后绕过存储会丢计数。
//
// TTL 刻意很短：刚创建的 slug 最多 10 秒内可能还命中负缓存，
// 创建/改名路径上还会显式 Forget 来消除这个窗口。
type MissCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewMissCache(maxItems int64) (*MissCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MissCache{
		cache: c,
		ttl:   10 * time.Second,
	}, nil
}

// Miss 返回 slug 是否在负缓存里（近期确认过不存在）。
func (m *MissCache) Miss(slug string) bool {
	_, ok := m.cache.Get(slug)
	return ok
}

func (m *MissCache) SetMiss(slug string) {
	m.cache.SetWithTTL(slug, struct{}{}, 1, m.ttl)
}

func (m *MissCache) Forget(slug string) {
	m.cache.Del(slug)
}

func (m *MissCache) Close() {
	m.cache.Close()
}
