package links

import "time"

// Link 是短链领域对象（domain model）。
//
// 说明：
// - Slug：短路径段（例如 https://s.example.com/{slug}），全局唯一（大小写不敏感）
// - DestinationURL：规范化后的目标长链接（http/https 绝对 URL）
// - ExpiresAt：可空，nil 表示永不过期
// - ClickCount：只会通过成功访问 +1，单调不减
//
// 设计原因：
// - 领域层只关心“业务含义”，不携带 HTTP/存储细节；JSON tag 仅服务于快照序列化
// - 状态（Active/Disabled/Expired）是从字段推导出来的，绝不单独落盘
type Link struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	DestinationURL string     `json:"destination_url"`
	Slug           string     `json:"slug"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Enabled        bool       `json:"enabled"`
	ClickCount     int64      `json:"click_count"`
}

// Status 是推导状态，不落盘。
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusExpired  Status = "expired"
)

// Expired 判断链接在 now 时刻是否已过期。nil ExpiresAt 表示永不过期。
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// StatusAt 计算链接在 now 时刻的状态。
//
// 优先级：Expired > Disabled > Active。
// 过期的链接无论 Enabled 与否都报告为 Expired（不可访问）。
func (l *Link) StatusAt(now time.Time) Status {
	if l.Expired(now) {
		return StatusExpired
	}
	if !l.Enabled {
		return StatusDisabled
	}
	return StatusActive
}

// ParseStatus 把外部传入的状态过滤词解析成 Status。
// 空串表示“不过滤”，由调用方处理。
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusDisabled, StatusExpired:
		return Status(s), true
	}
	return "", false
}
