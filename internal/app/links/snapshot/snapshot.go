// Package snapshot 提供“整库快照”的键值 blob 存储。
//
// 契约（调用方依赖的语义）：每次变更把完整集合写成一个 blob（write-through，
// 不做增量/日志结构），持久性 = “最后一次完成的写入之后的值”。
// 这只在小规模下可接受；换真正的存储引擎属于另一个设计，这里保持简单语义。
package snapshot

import (
	"context"
	"errors"
)

// ErrNoSnapshot 表示还没有任何快照（首次启动）。调用方据此初始化空状态。
var ErrNoSnapshot = errors.New("no snapshot")

// Store 是快照的后端抽象：一个键、一个 blob。
type Store interface {
	// Load 返回最后一次保存的 blob；从未保存过时返回 ErrNoSnapshot。
	Load(ctx context.Context) ([]byte, error)
	// Save 原子地替换整个 blob。失败时旧值必须仍然可读。
	Save(ctx context.Context, data []byte) error
}
