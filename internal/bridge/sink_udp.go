package bridge

import (
	"bytes"
	"net"
	"sync/atomic"
)

// UDPOpener 打开UDP广播套接字并给出目的地址
//
// 由外部网络初始化提供，注册表在UDP从关闭切到开启时调用。
type UDPOpener func() (net.PacketConn, net.Addr, error)

// UDPBroadcastSink UDP广播输出端，只在开关打开期间存在
type UDPBroadcastSink struct {
	conn        net.PacketConn
	dst         net.Addr
	maxDatagram int

	closed atomic.Bool
	sent   atomic.Uint64
	errs   atomic.Uint64
}

// NewUDPBroadcastSink 创建UDP输出端
func NewUDPBroadcastSink(conn net.PacketConn, dst net.Addr, maxDatagram int) *UDPBroadcastSink {
	if maxDatagram <= 0 {
		maxDatagram = 1472
	}
	return &UDPBroadcastSink{
		conn:        conn,
		dst:         dst,
		maxDatagram: maxDatagram,
	}
}

func (u *UDPBroadcastSink) ID() string     { return "udp:" + u.dst.String() }
func (u *UDPBroadcastSink) Kind() SinkKind { return SinkUDP }
func (u *UDPBroadcastSink) Alive() bool    { return !u.closed.Load() }

// Info 统计
func (u *UDPBroadcastSink) Info() SinkInfo {
	return SinkInfo{
		ID:     u.ID(),
		Kind:   SinkUDP.String(),
		Remote: u.dst.String(),
		Sent:   u.sent.Load(),
		Drops:  u.errs.Load(),
	}
}

// Write 按数据报大小切分后逐个发送。
// 单个报文失败不影响后续报文，返回第一个错误。
func (u *UDPBroadcastSink) Write(p []byte) error {
	if u.closed.Load() {
		return ErrSinkClosed
	}

	var first error
	for len(p) > 0 {
		n := datagramSize(p, u.maxDatagram)
		if _, err := u.conn.WriteTo(p[:n], u.dst); err != nil {
			u.errs.Add(1)
			if first == nil {
				first = err
			}
		} else {
			u.sent.Add(uint64(n))
		}
		p = p[n:]
	}
	return first
}

// Close 释放套接字，可重复调用
func (u *UDPBroadcastSink) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	return u.conn.Close()
}

// datagramSize 尽量在行尾切分，使一条NMEA语句不被拆到两个报文里
func datagramSize(p []byte, max int) int {
	if len(p) <= max {
		return len(p)
	}
	if i := bytes.LastIndexByte(p[:max], '\n'); i >= 0 {
		return i + 1
	}
	return max
}
