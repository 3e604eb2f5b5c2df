package hardware

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/boat-telnet/internal/bridge"
	"github.com/wfunc/boat-telnet/internal/errors"
	"go.uber.org/zap"
)

// PortSource 串口数据源
//
// 读协程阻塞在串口上，把数据放进有界FIFO；转发核心通过 TryRead 非阻塞取数。
// FIFO写满时丢弃最旧字节。读故障只上报一次，随后关闭串口并按退避间隔重新打开。
type PortSource struct {
	open   Opener
	name   string
	logger *zap.Logger

	reconnectInterval time.Duration
	maxInterval       time.Duration

	mu      sync.Mutex
	fifo    *bridge.RingBuffer
	dropped int
	fault   error
	port    SerialPort

	connected  atomic.Bool
	reconnects atomic.Uint64
	started    atomic.Bool
	stopping   atomic.Bool
	stopCh     chan struct{}
	done       chan struct{}
}

// PortSourceOptions 数据源参数
type PortSourceOptions struct {
	Name                 string
	FIFOSize             int
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
}

// NewPortSource 创建串口数据源
func NewPortSource(open Opener, opts PortSourceOptions, logger *zap.Logger) *PortSource {
	if opts.FIFOSize <= 0 {
		opts.FIFOSize = 4096
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	if opts.MaxReconnectInterval < opts.ReconnectInterval {
		opts.MaxReconnectInterval = opts.ReconnectInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PortSource{
		open:              open,
		name:              opts.Name,
		logger:            logger,
		reconnectInterval: opts.ReconnectInterval,
		maxInterval:       opts.MaxReconnectInterval,
		fifo:              bridge.NewRingBuffer(opts.FIFOSize),
		stopCh:            make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Start 启动读协程。首次打开失败不算错误，会在后台重试。
func (s *PortSource) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.pump()
}

// Stop 停止读协程并关闭串口
func (s *PortSource) Stop() {
	if s.stopping.Swap(true) {
		return
	}
	close(s.stopCh)

	s.mu.Lock()
	if s.port != nil {
		s.port.Close()
	}
	s.mu.Unlock()

	if s.started.Load() {
		<-s.done
	}
}

// Connected 串口当前是否已打开
func (s *PortSource) Connected() bool { return s.connected.Load() }

// Reconnects 重新打开串口的次数
func (s *PortSource) Reconnects() uint64 { return s.reconnects.Load() }

// Name 串口设备名
func (s *PortSource) Name() string { return s.name }

// TryRead 取出已缓存的字节，不阻塞。有未上报的故障时先返回故障。
func (s *PortSource) TryRead(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault != nil {
		err := s.fault
		s.fault = nil
		return 0, err
	}
	return s.fifo.Read(p), nil
}

// TakeDropped 取出并清零FIFO溢出字节数
func (s *PortSource) TakeDropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.dropped
	s.dropped = 0
	return n
}

func (s *PortSource) pump() {
	defer close(s.done)

	interval := s.reconnectInterval
	for {
		port, err := s.open()
		if err != nil {
			s.latch(err, errors.ErrSerialPortOpen)
			s.logger.Warn("串口打开失败，等待重试",
				zap.String("port", s.name),
				zap.Duration("interval", interval),
				zap.Error(err))
			if !s.sleep(interval) {
				return
			}
			// 逐渐增加重连间隔
			interval *= 2
			if interval > s.maxInterval {
				interval = s.maxInterval
			}
			continue
		}
		interval = s.reconnectInterval

		if !s.attach(port) {
			port.Close()
			return
		}
		s.logger.Info("串口已打开", zap.String("port", s.name))

		err = s.readLoop(port)
		s.detach()
		port.Close()

		if s.stopping.Load() {
			return
		}
		s.latch(err, errors.ErrSerialPortRead)
		s.logger.Error("串口读取故障，准备重新打开",
			zap.String("port", s.name),
			zap.Error(err))
		s.reconnects.Add(1)

		if !s.sleep(interval) {
			return
		}
	}
}

// readLoop 读取直到出现故障。io.EOF 表示读超时，不是故障。
func (s *PortSource) readLoop(port SerialPort) error {
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			s.push(buf[:n])
		}
		if err == nil || err == io.EOF {
			if s.stopping.Load() {
				return nil
			}
			continue
		}
		return err
	}
}

func (s *PortSource) push(p []byte) {
	s.mu.Lock()
	s.dropped += s.fifo.Write(p)
	s.mu.Unlock()
}

func (s *PortSource) attach(port SerialPort) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping.Load() {
		return false
	}
	s.port = port
	s.connected.Store(true)
	return true
}

func (s *PortSource) detach() {
	s.mu.Lock()
	s.port = nil
	s.connected.Store(false)
	s.mu.Unlock()
}

// latch 记录一次故障，等待 TryRead 上报。未上报的旧故障会被覆盖。
func (s *PortSource) latch(err error, code errors.ErrorCode) {
	if errors.GetCode(err) != errors.ErrUnknown {
		code = errors.GetCode(err)
	}
	s.mu.Lock()
	s.fault = errors.New(code, fmt.Sprintf("%s: %v", s.name, err))
	s.mu.Unlock()
}

func (s *PortSource) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-t.C:
		return true
	}
}
