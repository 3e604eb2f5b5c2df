package bridge

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wfunc/boat-telnet/internal/errors"
)

// Status 运行状态汇总
//
// 每个字段只有一个写入方，且每次都整体替换，
// 所以配置层可以在tick线程之外随时读取。
type Status struct {
	bytesIn     atomic.Uint64
	bytesOutTCP atomic.Uint64
	bytesOutUDP atomic.Uint64
	overflow    atomic.Uint64
	tcpDrops    atomic.Uint64
	udpErrors   atomic.Uint64
	rejected    atomic.Uint64
	activeTCP   atomic.Int32
	udpEnabled  atomic.Bool
	lastError   atomic.Pointer[string]
	lastErrorAt atomic.Int64
}

// StatusSnapshot 某一时刻的状态副本
type StatusSnapshot struct {
	BytesIn     uint64    `json:"bytes_in"`
	BytesOutTCP uint64    `json:"bytes_out_tcp"`
	BytesOutUDP uint64    `json:"bytes_out_udp"`
	Overflow    uint64    `json:"overflow"`
	TCPDrops    uint64    `json:"tcp_drops"`
	UDPErrors   uint64    `json:"udp_errors"`
	Rejected    uint64    `json:"rejected"`
	ActiveTCP   int       `json:"active_tcp"`
	UDPEnabled  bool      `json:"udp_enabled"`
	LastError   string    `json:"last_error"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

const noError = "none"

// NewStatus 创建状态汇总
func NewStatus() *Status {
	s := &Status{}
	tag := noError
	s.lastError.Store(&tag)
	return s
}

func (s *Status) AddBytesIn(n int) { s.bytesIn.Add(uint64(n)) }
func (s *Status) AddBytesOutTCP(n int) { s.bytesOutTCP.Add(uint64(n)) }
func (s *Status) AddBytesOutUDP(n int) { s.bytesOutUDP.Add(uint64(n)) }
func (s *Status) AddOverflow(n int) { s.overflow.Add(uint64(n)) }
func (s *Status) AddTCPDrop() { s.tcpDrops.Add(1) }
func (s *Status) AddUDPError() { s.udpErrors.Add(1) }
func (s *Status) AddRejected() { s.rejected.Add(1) }
func (s *Status) SetActiveTCP(n int) { s.activeTCP.Store(int32(n)) }
func (s *Status) SetUDPEnabled(on bool) { s.udpEnabled.Store(on) }

// SetLastError 记录最近一次错误的短标签
func (s *Status) SetLastError(code errors.ErrorCode) {
	tag := errors.Tag(code)
	s.lastError.Store(&tag)
	s.lastErrorAt.Store(time.Now().UnixNano())
}

// Snapshot 读取状态副本
func (s *Status) Snapshot() StatusSnapshot {
	snap := StatusSnapshot{
		BytesIn:     s.bytesIn.Load(),
		BytesOutTCP: s.bytesOutTCP.Load(),
		BytesOutUDP: s.bytesOutUDP.Load(),
		Overflow:    s.overflow.Load(),
		TCPDrops:    s.tcpDrops.Load(),
		UDPErrors:   s.udpErrors.Load(),
		Rejected:    s.rejected.Load(),
		ActiveTCP:   int(s.activeTCP.Load()),
		UDPEnabled:  s.udpEnabled.Load(),
		LastError:   *s.lastError.Load(),
	}
	if at := s.lastErrorAt.Load(); at != 0 {
		snap.LastErrorAt = time.Unix(0, at)
	}
	return snap
}

// String 格式化状态字符串（即STATUS设置项的值）
func (s *Status) String() string {
	return s.Snapshot().String()
}

func (ss StatusSnapshot) String() string {
	udp := "off"
	if ss.UDPEnabled {
		udp = "on"
	}
	return fmt.Sprintf("in:%d tcp:%d/%d udp:%s/%d ovf:%d drop:%d rej:%d uerr:%d err:%s",
		ss.BytesIn,
		ss.ActiveTCP, ss.BytesOutTCP,
		udp, ss.BytesOutUDP,
		ss.Overflow, ss.TCPDrops, ss.Rejected, ss.UDPErrors,
		ss.LastError)
}
