package links

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// NormalizeURL 规范化并校验用户输入的目标 URL。
//
// 规则：
// - 去掉首尾空白；没有 scheme 时默认补 https://
// - 必须能解析成绝对 URL，host 不能为空
// - scheme 仅允许 http/https
//
// 设计原因（为什么放在领域层）：
// - 避免重复：HTTP handler、service、store 各写一遍规则会很快失控
// - 便于测试：纯函数天然适合写单元测试
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrUnsupportedScheme
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

var (
	slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,30}[a-z0-9]$`)

	separatorRunRe = regexp.MustCompile(`[-_]{2,}`)
	slugStripRe    = regexp.MustCompile(`[^a-z0-9_-]`)
)

// 保留 slug：与站点路由前缀冲突、或语义上不允许被占用的词。
var reservedSlugs = map[string]struct{}{
	"api":      {},
	"healthz":  {},
	"readyz":   {},
	"metrics":  {},
	"admin":    {},
	"login":    {},
	"register": {},
	"static":   {},
	"www":      {},
	"favicon":  {},
}

// SanitizeSlug 把任意输入清洗成合法 slug 字符集内的字符串。
//
// 纯函数、永不失败，可能返回空串（由 ValidateSlug 报 ErrEmptySlug）。
// 步骤：小写、去首尾空白、空格转 "-"、剔除非法字符、压缩连续分隔符、去首尾分隔符。
func SanitizeSlug(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugStripRe.ReplaceAllString(s, "")
	s = separatorRunRe.ReplaceAllStringFunc(s, func(run string) string {
		return run[:1]
	})
	s = strings.Trim(s, "-_")
	return s
}

// ValidateSlug 校验 slug 是否可以被分配。
//
// 规则：
// - 非空，长度 3~32
// - 仅 [a-z0-9_-]，且首尾必须是字母或数字
// - 不在保留列表里
func ValidateSlug(slug string) error {
	if slug == "" {
		return ErrEmptySlug
	}
	if len(slug) < 3 || len(slug) > 32 {
		return ErrSlugLength
	}
	if !slugRe.MatchString(slug) {
		return ErrSlugCharset
	}
	if _, ok := reservedSlugs[slug]; ok {
		return ErrSlugReserved
	}
	return nil
}

// IsReservedSlug 暴露保留判断给分配器（随机候选也不允许命中保留词）。
func IsReservedSlug(slug string) bool {
	_, ok := reservedSlugs[strings.ToLower(slug)]
	return ok
}

// ParseExpiry 解析过期时间。空串表示不过期（返回 nil）。
// 仅接受 RFC3339；解析失败返回 ErrInvalidExpiry。
func ParseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, ErrInvalidExpiry
	}
	return &t, nil
}
