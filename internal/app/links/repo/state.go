package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shortd.local/internal/app/links"
	"shortd.local/internal/app/links/snapshot"
)

// schemaVersion 写进每个快照。读到更新的版本直接报错，
// 防止老进程把新格式的数据写坏（没有降级迁移）。
const schemaVersion = 1

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// State 是快照里的全部持久状态：链接集合 + 账号集合。
//
// 切片保持插入顺序（ListByOwner 的 most-recent-first 靠倒序遍历实现），
// 不维护额外索引——快照语义本来就只在小规模下成立，线性扫描足够。
type State struct {
	SchemaVersion int          `json:"schema_version"`
	Accounts      []Account    `json:"accounts"`
	Links         []links.Link `json:"links"`
}

// Store 持有内存态和快照后端，是唯一的写串行化点。
//
// 设计原因：
// - 不用进程级全局单例，而是“一个显式的 store 实例 + 一把互斥锁”
//   （依赖注入，方便测试隔离；多请求部署下锁就是单写者序列化点）
// - 每次变更先写快照再提交内存态；写失败时内存态回滚，
//   变更不算发生（持久化错误对该操作是致命的）
type Store struct {
	mu    sync.Mutex
	blob  snapshot.Store
	state State
}

// Open 加载快照并构建 Store；没有快照时从空状态开始。
func Open(ctx context.Context, blob snapshot.Store) (*Store, error) {
	s := &Store{blob: blob}
	data, err := blob.Load(ctx)
	if err != nil {
		if err == snapshot.ErrNoSnapshot {
			s.state = State{SchemaVersion: schemaVersion}
			return s, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if st.SchemaVersion > schemaVersion {
		return nil, fmt.Errorf("snapshot schema version %d is newer than supported %d", st.SchemaVersion, schemaVersion)
	}
	st.SchemaVersion = schemaVersion
	s.state = st
	return s, nil
}

// persistLocked 把完整状态写到快照后端。调用方必须持有 s.mu。
func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(&s.state)
	if err != nil {
		// State 里没有不可序列化的类型，真出错属于编程错误。
		slog.Error("snapshot marshal failed", "err", err)
		return err
	}
	if err := s.blob.Save(ctx, data); err != nil {
		slog.Error("snapshot save failed", "err", err)
		return err
	}
	return nil
}

// cloneLink 返回值拷贝，ExpiresAt 指针也复制，避免调用方改动内部状态。
func cloneLink(l links.Link) links.Link {
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		l.ExpiresAt = &t
	}
	return l
}
