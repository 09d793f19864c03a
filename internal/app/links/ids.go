package links

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sqids/sqids-go"
)

var (
	sq     *sqids.Sqids
	sqOnce sync.Once
	idSeq  uint64
)

func getSqids() *sqids.Sqids {
	sqOnce.Do(func() {
		var err error
		sq, err = sqids.New(sqids.Options{
			Alphabet:  "k3G7QAe51FCsiWrNOYBUwM6XzZvdLT4j9JhyHKg2cVbxfERq0mSoI8lDpunPat",
			MinLength: 8,
		})
		if err != nil {
			panic("sqids init failed: " + err.Error())
		}
	})
	return sq
}

// NewID 生成不透明的记录 ID（创建后不可变、永不复用）。
//
// 用 sqids 编码 (毫秒时间戳, 进程内序列号)：短、不含歧义字符、
// 不像自增 ID 那样可被枚举。ID 只要求唯一，不承载业务含义。
func NewID() string {
	id, err := getSqids().Encode([]uint64{
		uint64(time.Now().UnixMilli()),
		atomic.AddUint64(&idSeq, 1),
	})
	if err != nil {
		// Encode 只会在数字超出范围时出错，这里的输入不可能触发。
		panic("id encode failed: " + err.Error())
	}
	return id
}
