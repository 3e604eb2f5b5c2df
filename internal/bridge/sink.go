package bridge

import (
	"errors"
)

// 输出端错误定义（热路径上使用，不带调用栈）
var (
	ErrSendBufferFull   = errors.New("发送缓冲区已满")
	ErrSinkClosed       = errors.New("输出端已关闭")
	ErrTooManySessions  = errors.New("会话数已达上限")
	ErrDuplicateSink    = errors.New("输出端已存在")
	ErrPendingQueueFull = errors.New("待接入队列已满")
)

// SinkKind 输出端类型
type SinkKind int

const (
	SinkTCP SinkKind = iota
	SinkUDP
)

func (k SinkKind) String() string {
	switch k {
	case SinkTCP:
		return "tcp"
	case SinkUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Sink 转发目标
type Sink interface {
	// ID 连接标识，在注册表内唯一
	ID() string
	Kind() SinkKind
	// Write 不得阻塞。TCP会话在发送队列满时返回 ErrSendBufferFull，
	// 连接断开后返回 ErrSinkClosed。
	Write(p []byte) error
	Alive() bool
	Close() error
}

// SinkInfo 输出端的只读描述，用于状态展示
type SinkInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Remote string `json:"remote,omitempty"`
	Sent   uint64 `json:"sent"`
	Drops  uint64 `json:"drops"`
}

// describer 可选接口：输出端自身的统计
type describer interface {
	Info() SinkInfo
}

// Describe 生成输出端描述
func Describe(s Sink) SinkInfo {
	if d, ok := s.(describer); ok {
		return d.Info()
	}
	return SinkInfo{ID: s.ID(), Kind: s.Kind().String()}
}
