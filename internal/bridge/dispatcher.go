package bridge

import (
	"github.com/wfunc/boat-telnet/internal/errors"
	"go.uber.org/zap"
)

// Dispatcher 每个tick把环形缓冲区的数据扇出到全部输出端
type Dispatcher struct {
	ring     *RingBuffer
	registry *Registry
	status   *Status
	buf      []byte
	removals []Sink
	logger   *zap.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(ring *RingBuffer, registry *Registry, status *Status, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ring:     ring,
		registry: registry,
		status:   status,
		buf:      make([]byte, 0, ring.Cap()),
		logger:   logger,
	}
}

// Dispatch 取出缓冲区全部数据并写给每个输出端，返回取出的字节数。
// 取出即丢弃，与投递结果无关。断开的会话只登记，下个tick再移除。
func (d *Dispatcher) Dispatch() int {
	data := d.ring.Drain(d.buf)
	d.buf = data[:0]
	if len(data) == 0 {
		return 0
	}

	for _, s := range d.registry.Snapshot() {
		err := s.Write(data)
		switch s.Kind() {
		case SinkTCP:
			d.afterTCP(s, len(data), err)
		case SinkUDP:
			d.afterUDP(s, len(data), err)
		}
	}
	return len(data)
}

func (d *Dispatcher) afterTCP(s Sink, n int, err error) {
	switch err {
	case nil:
		d.status.AddBytesOutTCP(n)
	case ErrSendBufferFull:
		d.status.AddTCPDrop()
	default:
		d.removals = append(d.removals, s)
	}
}

func (d *Dispatcher) afterUDP(s Sink, n int, err error) {
	if err == nil {
		d.status.AddBytesOutUDP(n)
		return
	}
	d.status.AddUDPError()
	d.status.SetLastError(errors.ErrUDPSend)
	d.logger.Debug("UDP发送失败", zap.String("sink", s.ID()), zap.Error(err))
}

// TakeRemovals 取出上一次分发登记的待移除会话
func (d *Dispatcher) TakeRemovals() []Sink {
	out := d.removals
	d.removals = nil
	return out
}
