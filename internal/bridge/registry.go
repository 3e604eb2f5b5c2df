package bridge

import (
	"github.com/wfunc/boat-telnet/internal/errors"
	"go.uber.org/zap"
)

// Registry 当前活动的输出端集合
//
// 只在tick线程的应用阶段被修改，分发器每个tick通过 Snapshot 取得副本迭代。
type Registry struct {
	sinks   []Sink
	tcp     int
	maxTCP  int
	udp     Sink
	openUDP func() (Sink, error)
	status  *Status
	logger  *zap.Logger
}

// NewRegistry 创建注册表，openUDP 在UDP开启时构造UDP输出端
func NewRegistry(maxTCP int, openUDP func() (Sink, error), status *Status, logger *zap.Logger) *Registry {
	return &Registry{
		maxTCP:  maxTCP,
		openUDP: openUDP,
		status:  status,
		logger:  logger,
	}
}

// MaxTCP TCP会话上限
func (r *Registry) MaxTCP() int { return r.maxTCP }

// TCPCount 活动TCP会话数
func (r *Registry) TCPCount() int { return r.tcp }

// HasTCPRoom 是否还能接入TCP会话
func (r *Registry) HasTCPRoom() bool { return r.tcp < r.maxTCP }

// UDPEnabled UDP输出端是否存在
func (r *Registry) UDPEnabled() bool { return r.udp != nil }

// Len 输出端总数
func (r *Registry) Len() int { return len(r.sinks) }

// AddTCPSink 注册TCP会话，达到上限时立即拒绝
func (r *Registry) AddTCPSink(s Sink) error {
	if r.tcp >= r.maxTCP {
		r.status.AddRejected()
		r.status.SetLastError(errors.ErrSessionRejected)
		return ErrTooManySessions
	}
	if r.indexOf(s.ID()) >= 0 {
		return ErrDuplicateSink
	}

	r.sinks = append(r.sinks, s)
	r.tcp++
	r.status.SetActiveTCP(r.tcp)
	return nil
}

// RemoveSink 移除并关闭TCP会话。不存在时什么都不做。
// UDP输出端只能通过 SetUDPEnabled 移除。
func (r *Registry) RemoveSink(s Sink) bool {
	if s.Kind() != SinkTCP {
		return false
	}
	i := r.indexOf(s.ID())
	if i < 0 {
		return false
	}

	r.drop(i)
	r.tcp--
	r.status.SetActiveTCP(r.tcp)
	s.Close()
	return true
}

// SetUDPEnabled 构造或释放UDP输出端，状态不变时什么都不做
func (r *Registry) SetUDPEnabled(on bool) error {
	switch {
	case on && r.udp == nil:
		s, err := r.openUDP()
		if err != nil {
			r.status.SetLastError(errors.ErrUDPOpen)
			return errors.Wrap(err, errors.ErrUDPOpen)
		}
		r.sinks = append(r.sinks, s)
		r.udp = s
		r.status.SetUDPEnabled(true)
		r.logger.Info("UDP广播已开启", zap.String("sink", s.ID()))

	case !on && r.udp != nil:
		if i := r.indexOf(r.udp.ID()); i >= 0 {
			r.drop(i)
		}
		r.udp.Close()
		r.logger.Info("UDP广播已关闭", zap.String("sink", r.udp.ID()))
		r.udp = nil
		r.status.SetUDPEnabled(false)
	}
	return nil
}

// Snapshot 当前输出端列表的副本，迭代期间不受注册表修改影响
func (r *Registry) Snapshot() []Sink {
	out := make([]Sink, len(r.sinks))
	copy(out, r.sinks)
	return out
}

// CloseAll 关闭并清空全部输出端
func (r *Registry) CloseAll() {
	for _, s := range r.sinks {
		s.Close()
	}
	r.sinks = nil
	r.tcp = 0
	r.udp = nil
	r.status.SetActiveTCP(0)
	r.status.SetUDPEnabled(false)
}

func (r *Registry) indexOf(id string) int {
	for i, s := range r.sinks {
		if s.ID() == id {
			return i
		}
	}
	return -1
}

func (r *Registry) drop(i int) {
	copy(r.sinks[i:], r.sinks[i+1:])
	r.sinks[len(r.sinks)-1] = nil
	r.sinks = r.sinks[:len(r.sinks)-1]
}
