package bridge

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TCPSessionSink 一个Telnet会话
//
// 每个会话持有自己的发送队列和写协程，分发器只做非阻塞入队。
// 客户端发来的字节直接丢弃，读协程只用于发现连接断开。
type TCPSessionSink struct {
	id           string
	conn         net.Conn
	remote       string
	send         chan []byte
	writeTimeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	sent  atomic.Uint64
	drops atomic.Uint64

	logger *zap.Logger
}

// NewTCPSessionSink 创建会话并启动读写协程
func NewTCPSessionSink(conn net.Conn, queueSize int, writeTimeout time.Duration, logger *zap.Logger) *TCPSessionSink {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &TCPSessionSink{
		id:           uuid.New().String(),
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		send:         make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		logger:       logger,
	}

	go s.writePump()
	go s.readPump()

	return s
}

func (s *TCPSessionSink) ID() string     { return s.id }
func (s *TCPSessionSink) Kind() SinkKind { return SinkTCP }
func (s *TCPSessionSink) Remote() string { return s.remote }
func (s *TCPSessionSink) Alive() bool    { return !s.closed.Load() }

// Drops 因发送队列满丢弃的次数
func (s *TCPSessionSink) Drops() uint64 { return s.drops.Load() }

// Info 会话统计
func (s *TCPSessionSink) Info() SinkInfo {
	return SinkInfo{
		ID:     s.id,
		Kind:   SinkTCP.String(),
		Remote: s.remote,
		Sent:   s.sent.Load(),
		Drops:  s.drops.Load(),
	}
}

// Write 非阻塞入队，队列满时本轮数据对该会话丢弃
func (s *TCPSessionSink) Write(p []byte) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	// 分发器会复用缓冲区，这里必须复制
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case s.send <- buf:
		return nil
	default:
		s.drops.Add(1)
		return ErrSendBufferFull
	}
}

// Close 关闭会话，可重复调用
func (s *TCPSessionSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// writePump 按顺序把队列中的数据写到连接
func (s *TCPSessionSink) writePump() {
	for {
		select {
		case <-s.done:
			return
		case buf := <-s.send:
			if s.writeTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			n, err := s.conn.Write(buf)
			s.sent.Add(uint64(n))
			if err != nil {
				s.logger.Debug("会话写入失败",
					zap.String("session_id", s.id),
					zap.String("remote", s.remote),
					zap.Error(err))
				s.Close()
				return
			}
		}
	}
}

// readPump 丢弃客户端输入，读到错误即认为连接断开
func (s *TCPSessionSink) readPump() {
	buf := make([]byte, 256)
	for {
		if _, err := s.conn.Read(buf); err != nil {
			s.Close()
			return
		}
	}
}
