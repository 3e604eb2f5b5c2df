package network

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/boat-telnet/internal/errors"
	"go.uber.org/zap"
)

// ConnHandler 接收已接受的连接，不得阻塞
type ConnHandler func(net.Conn)

// Acceptor Telnet监听器
//
// 只负责 listen/accept，连接交给 handler，由转发核心在tick边界决定接入或拒绝。
type Acceptor struct {
	addr     string
	handler  ConnHandler
	listener net.Listener
	logger   *zap.Logger

	accepted atomic.Uint64
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewAcceptor 创建监听器
func NewAcceptor(addr string, handler ConnHandler, logger *zap.Logger) *Acceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acceptor{
		addr:    addr,
		handler: handler,
		logger:  logger,
	}
}

// Listen 绑定监听地址
func (a *Acceptor) Listen() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return errors.Wrapf(err, errors.ErrListen, "addr=%s", a.addr)
	}
	a.listener = ln
	a.logger.Info("Telnet监听已启动", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 实际监听地址
func (a *Acceptor) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Accepted 已接受的连接数
func (a *Acceptor) Accepted() uint64 { return a.accepted.Load() }

// Start 在后台协程中接受连接，ctx结束时关闭监听
func (a *Acceptor) Start(ctx context.Context) error {
	if a.listener == nil {
		if err := a.Listen(); err != nil {
			return err
		}
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()
		a.Close()
	}()
	go func() {
		defer a.wg.Done()
		a.serve()
	}()
	return nil
}

func (a *Acceptor) serve() {
	var delay time.Duration
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if a.closed.Load() {
				return
			}
			// 临时错误（如文件描述符耗尽）退避后重试
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			a.logger.Warn("接受连接失败", zap.Error(err), zap.Duration("retry_in", delay))
			time.Sleep(delay)
			continue
		}
		delay = 0

		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}
		a.accepted.Add(1)
		a.handler(conn)
	}
}

// Close 关闭监听，已接受的连接不受影响
func (a *Acceptor) Close() error {
	if a.closed.Swap(true) || a.listener == nil {
		return nil
	}
	return a.listener.Close()
}

// Wait 等待后台协程退出
func (a *Acceptor) Wait() {
	a.wg.Wait()
}
