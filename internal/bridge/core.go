package bridge

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/boat-telnet/internal/errors"
	"go.uber.org/zap"
)

// 设备标识与设置项ID
const (
	DeviceName    = "esp32_telnet"
	DeviceVersion = "et1.0"

	IDEnableUDP = "ENABLE_UDP"
	IDStatus    = "STATUS"
)

// SettingsHost 配置层提供的注册能力
type SettingsHost interface {
	// RegisterBool 注册布尔设置项，返回持久化的当前值。
	// onChange 在值变化时被调用，调用时机与tick无关。
	RegisterBool(id, description string, def bool, onChange func(bool)) (bool, error)
	// RegisterString 注册只读字符串，read 在读取时被调用
	RegisterString(id, description string, read func() string) error
}

// Options 核心参数
type Options struct {
	RingSize      int
	ReadChunk     int
	MaxSessions   int
	SendQueue     int
	WriteTimeout  time.Duration
	RejectMessage string
	MaxDatagram   int
	UDPDefault    bool // 设置项不存在时的默认值
}

func (o *Options) normalize() {
	if o.RingSize <= 0 {
		o.RingSize = 4096
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = 256
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 4
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.MaxDatagram <= 0 {
		o.MaxDatagram = 1472
	}
}

// Core 串口到网络的转发核心
//
// Tick 必须由同一个协程反复调用，顺序固定为：读取、应用延迟修改、分发。
// Accept 和 OnUDPEnableChanged 可以在任意协程调用，只登记意图。
type Core struct {
	opts Options

	status     *Status
	ring       *RingBuffer
	reader     *Reader
	registry   *Registry
	dispatcher *Dispatcher
	toggle     *Toggle

	pendingMu sync.Mutex
	pending   []net.Conn

	sessions atomic.Pointer[[]SinkInfo]
	ticks    atomic.Uint64
	closed   atomic.Bool

	logger *zap.Logger
}

// New 创建转发核心。openUDP 为空时UDP始终无法开启。
func New(src Source, openUDP UDPOpener, opts Options, logger *zap.Logger) *Core {
	opts.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Core{
		opts:   opts,
		status: NewStatus(),
		ring:   NewRingBuffer(opts.RingSize),
		logger: logger,
	}
	c.reader = NewReader(src, c.ring, c.status, opts.ReadChunk, logger)
	c.registry = NewRegistry(opts.MaxSessions, c.udpFactory(openUDP), c.status, logger)
	c.dispatcher = NewDispatcher(c.ring, c.registry, c.status, logger)
	c.toggle = NewToggle(c.registry, logger)

	empty := []SinkInfo{}
	c.sessions.Store(&empty)
	return c
}

func (c *Core) udpFactory(open UDPOpener) func() (Sink, error) {
	return func() (Sink, error) {
		if open == nil {
			return nil, errors.New(errors.ErrUDPOpen, "未配置UDP")
		}
		conn, dst, err := open()
		if err != nil {
			return nil, err
		}
		return NewUDPBroadcastSink(conn, dst, c.opts.MaxDatagram), nil
	}
}

// Setup 向配置层注册设置项，并以持久化值作为UDP的初始状态
func (c *Core) Setup(host SettingsHost) error {
	if err := host.RegisterString(IDStatus, "转发状态", c.status.String); err != nil {
		return err
	}

	enabled, err := host.RegisterBool(IDEnableUDP, "启用UDP广播", c.opts.UDPDefault, c.OnUDPEnableChanged)
	if err != nil {
		return err
	}
	c.toggle.OnUDPEnableChanged(enabled)

	c.logger.Info("转发核心初始化完成",
		zap.Int("ring_size", c.opts.RingSize),
		zap.Int("max_sessions", c.opts.MaxSessions),
		zap.Bool("udp_enabled", enabled))
	return nil
}

// OnUDPEnableChanged 设置项ENABLE_UDP的变更回调
func (c *Core) OnUDPEnableChanged(value bool) {
	c.toggle.OnUDPEnableChanged(value)
}

// Accept 接收监听器已接受的连接，在下一个tick边界决定接入或拒绝。
// 待接入队列已满时立即拒绝。
func (c *Core) Accept(conn net.Conn) {
	if c.closed.Load() {
		conn.Close()
		return
	}

	c.pendingMu.Lock()
	if len(c.pending) >= c.opts.MaxSessions {
		c.pendingMu.Unlock()
		c.reject(conn)
		return
	}
	c.pending = append(c.pending, conn)
	c.pendingMu.Unlock()
}

// Tick 执行一次调度
func (c *Core) Tick() {
	c.reader.Ingest()
	c.apply()
	c.dispatcher.Dispatch()
	c.ticks.Add(1)
}

// apply 应用上一个阶段登记的修改
func (c *Core) apply() {
	changed := false

	for _, s := range c.dispatcher.TakeRemovals() {
		if c.registry.RemoveSink(s) {
			c.logSession("closed", s)
			changed = true
		}
	}
	// 读协程发现的断开连接，不必等到有数据写入
	for _, s := range c.registry.Snapshot() {
		if s.Kind() == SinkTCP && !s.Alive() {
			if c.registry.RemoveSink(s) {
				c.logSession("closed", s)
				changed = true
			}
		}
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendingMu.Unlock()

	for _, conn := range pending {
		if !c.registry.HasTCPRoom() {
			c.reject(conn)
			continue
		}
		s := NewTCPSessionSink(conn, c.opts.SendQueue, c.opts.WriteTimeout, c.logger)
		if err := c.registry.AddTCPSink(s); err != nil {
			s.Close()
			continue
		}
		c.logSession("connected", s)
		changed = true
	}

	wasUDP := c.registry.UDPEnabled()
	c.toggle.Apply()
	if c.registry.UDPEnabled() != wasUDP {
		changed = true
	}

	if changed {
		c.publishSessions()
	}
}

// reject 拒绝连接：发送提示后关闭，不阻塞调用方
func (c *Core) reject(conn net.Conn) {
	c.status.AddRejected()
	c.status.SetLastError(errors.ErrSessionRejected)
	c.logger.Info("会话数已达上限，拒绝连接", zap.String("remote", conn.RemoteAddr().String()))

	msg := c.opts.RejectMessage
	go func() {
		if msg != "" {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.Write([]byte(msg))
		}
		conn.Close()
	}()
}

func (c *Core) logSession(event string, s Sink) {
	info := Describe(s)
	c.logger.Info("session_event",
		zap.String("event", event),
		zap.String("session_id", info.ID),
		zap.String("remote", info.Remote),
		zap.Uint64("drops", info.Drops))
}

func (c *Core) publishSessions() {
	sinks := c.registry.Snapshot()
	infos := make([]SinkInfo, 0, len(sinks))
	for _, s := range sinks {
		infos = append(infos, Describe(s))
	}
	c.sessions.Store(&infos)
}

// Run 按固定间隔执行tick，直到ctx结束
func (c *Core) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Close 关闭全部输出端和待接入连接。只能在tick协程或tick停止后调用。
func (c *Core) Close() {
	if c.closed.Swap(true) {
		return
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendingMu.Unlock()
	for _, conn := range pending {
		conn.Close()
	}

	c.registry.CloseAll()
	c.publishSessions()
}

// Status 状态汇总，可在任意协程读取
func (c *Core) Status() *Status { return c.status }

// StatusString 状态字符串
func (c *Core) StatusString() string { return c.status.String() }

// Sessions 最近一次输出端变化时的列表（在tick边界发布）
func (c *Core) Sessions() []SinkInfo { return *c.sessions.Load() }

// Ticks 已执行的tick数
func (c *Core) Ticks() uint64 { return c.ticks.Load() }

// MaxSessions TCP会话上限
func (c *Core) MaxSessions() int { return c.opts.MaxSessions }
