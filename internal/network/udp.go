package network

import (
	"net"
	"strconv"

	"github.com/wfunc/boat-telnet/internal/bridge"
	"github.com/wfunc/boat-telnet/internal/config"
	"github.com/wfunc/boat-telnet/internal/errors"
)

// NewUDPOpener 按配置返回UDP广播套接字的构造函数。
// Go在UDP套接字上默认开启SO_BROADCAST。
func NewUDPOpener(cfg *config.UDPConfig) bridge.UDPOpener {
	return func() (net.PacketConn, net.Addr, error) {
		target := net.JoinHostPort(cfg.BroadcastAddr, strconv.Itoa(cfg.Port))
		dst, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			return nil, nil, errors.Wrapf(err, errors.ErrUDPOpen, "target=%s", target)
		}

		local := cfg.LocalAddr
		if local == "" {
			local = ":0"
		}
		pc, err := net.ListenPacket("udp4", local)
		if err != nil {
			return nil, nil, errors.Wrapf(err, errors.ErrUDPOpen, "local=%s", local)
		}
		return pc, dst, nil
	}
}
