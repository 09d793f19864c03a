package stats

import "time"

// ClickEvent 是一次成功跳转的明细。
//
// 注意：点击计数（Link.ClickCount）由核心在访问路径里同步 +1，
// 这里只承载“明细日志”（时间、来源、UA），丢了不影响计数的正确性。
type ClickEvent struct {
	LinkID    string    `json:"link_id"`
	Slug      string    `json:"slug"`
	ClickedAt time.Time `json:"clicked_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// Collector 收集器接口（方便在 Channel 和 Kafka 之间切换）。
type Collector interface {
	Collect(event ClickEvent)
	Close()
}

// ChannelCollector 基于 channel 的进程内收集器。
type ChannelCollector struct {
	ch     chan ClickEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan ClickEvent, bufferSize),
	}
}

// Collect 非阻塞投递；通道满了直接丢弃（明细允许有损，跳转路径不能被拖慢）。
func (c *ChannelCollector) Collect(event ClickEvent) {
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
	}
}

func (c *ChannelCollector) Events() <-chan ClickEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.closed = true
	close(c.ch)
}
