package links

import (
	"math/rand/v2"
	"strings"
)

// 随机 slug 的参数：36 字符字母表、定长 6、最多 30 次尝试。
//
// 36^6 ≈ 21.7 亿，小规模下 30 次内撞满的概率可以忽略；真撞满说明
// 空间快用尽了，应该加长 slug 而不是无限重试，所以超限按致命错误处理。
const (
	slugAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
	randomSlugLen   = 6
	maxSlugAttempts = 30
)

// randomSlug 生成一个定长随机候选（不保证唯一，由调用方查重）。
func randomSlug() string {
	var b strings.Builder
	b.Grow(randomSlugLen)
	for i := 0; i < randomSlugLen; i++ {
		b.WriteByte(slugAlphabet[rand.IntN(len(slugAlphabet))])
	}
	return b.String()
}

// AllocateSlug 为一条链接分配 slug。
//
// requested 非空（清洗后）：校验后查重，被占用返回 ErrSlugTaken，不自动重试。
// requested 为空：随机生成候选，有界重试，超过 maxSlugAttempts 返回 ErrSlugExhausted。
//
// exists 由存储层提供（大小写不敏感、可排除正在编辑的那条记录），
// 必须反映调用时刻存储的真实状态；分配器自身不做任何缓存。
func AllocateSlug(requested string, exists func(slug string) bool) (string, error) {
	if s := SanitizeSlug(requested); s != "" {
		if err := ValidateSlug(s); err != nil {
			return "", err
		}
		if exists(s) {
			return "", ErrSlugTaken
		}
		return s, nil
	}

	for i := 0; i < maxSlugAttempts; i++ {
		candidate := randomSlug()
		if IsReservedSlug(candidate) {
			continue
		}
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", ErrSlugExhausted
}
