package links

import "errors"

// 领域错误分三类（上层据此映射 HTTP 状态码，见 httpapi）：
// - 校验错误：调用方可修正输入后重试，不会自动重试
// - 冲突错误：显式 slug 冲突直接报告；仅随机分配才有有界自动重试
// - 状态错误：访问/切换时对用户的拒绝，不是系统故障

// Validation errors.
var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrEmptySlug         = errors.New("slug is empty")
	ErrSlugLength        = errors.New("slug length must be 3-32")
	ErrSlugCharset       = errors.New("slug has invalid characters")
	ErrSlugReserved      = errors.New("slug is reserved")
	ErrInvalidExpiry     = errors.New("invalid expiry timestamp")
)

// Conflict errors.
var (
	ErrSlugTaken     = errors.New("slug already taken")
	ErrSlugExhausted = errors.New("slug allocation exhausted")
)

// State errors.
var (
	ErrLinkNotFound = errors.New("link not found")
	ErrLinkExpired  = errors.New("link expired")
	ErrLinkDisabled = errors.New("link disabled")
)
