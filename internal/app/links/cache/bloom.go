package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// SlugFilter 是 slug 占用情况的布隆过滤器，给分配器的查重做快速前置判断。
//
// MightExist 返回 false 表示一定没被占用，可以跳过存储层查找；
// 返回 true 只是“可能存在”，必须回存储确认——过滤器永远不是权威。
// 布隆不支持删除，删掉的 slug 会留下假阳性，代价只是多一次存储查找。
type SlugFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewSlugFilter 创建过滤器。expectedItems 是预期 slug 总量，fp 是目标误判率（建议 0.01）。
func NewSlugFilter(expectedItems uint, fp float64) *SlugFilter {
	return &SlugFilter{
		filter: bloom.NewWithEstimates(expectedItems, fp),
	}
}

func (f *SlugFilter) Add(slug string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(slug)
}

func (f *SlugFilter) MightExist(slug string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(slug)
}

// Count 返回已添加元素数量的估算值。
func (f *SlugFilter) Count() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.ApproximatedSize()
}
