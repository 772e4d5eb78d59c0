package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/backkem/matter-core/pkg/message"
	"github.com/pion/logging"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// UDP carries messages over a net.PacketConn and calls the configured
// MessageHandler for each datagram it reads.
type UDP struct {
	conn    net.PacketConn
	handler MessageHandler
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	started atomic.Bool
	closed  atomic.Bool
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn. If nil a socket is
	// opened on ListenAddr.
	Conn       net.PacketConn
	ListenAddr string

	// MessageHandler is required.
	MessageHandler MessageHandler

	LoggerFactory logging.LoggerFactory
}

// NewUDP creates a UDP transport.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	u := &UDP{
		conn:    config.Conn,
		handler: config.MessageHandler,
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}
	return u, nil
}

// Start begins the read loop.
func (u *UDP) Start() error {
	if u.closed.Load() {
		return ErrClosed
	}
	if !u.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if u.log != nil {
		u.log.Infof("starting UDP transport on %s", u.conn.LocalAddr())
	}
	u.wg.Add(1)
	go u.readLoop()
	return nil
}

// Close stops the read loop and closes the socket.
func (u *UDP) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if u.log != nil {
		u.log.Info("stopping UDP transport")
	}
	close(u.closeCh)
	_ = u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	u.wg.Wait()
	return err
}

// Send writes data to the peer, trying each destination in order until a
// write succeeds.
func (u *UDP) Send(data []byte, peer PeerAddress) error {
	if u.closed.Load() {
		return ErrClosed
	}
	if peer.Type() != TypeUDP || len(peer.Destinations()) == 0 {
		return ErrInvalidAddress
	}
	if len(data) > message.MaxUDPMessageSize {
		return ErrMessageTooLarge
	}

	var errs error
	for i := range peer.Destinations() {
		addr := peer.UDPAddr(i)
		if u.log != nil {
			u.log.Debugf("sending %d bytes to %v", len(data), addr)
		}
		if _, err := u.conn.WriteTo(data, addr); err != nil {
			if u.log != nil {
				u.log.Warnf("send to %v failed: %v", addr, err)
			}
			errs = multierr.Append(errs, err)
			continue
		}
		return nil
	}
	return errs
}

func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, message.MaxUDPMessageSize)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
			}
			if u.log != nil {
				u.log.Warnf("UDP read error: %v", err)
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		peer, err := FromNetAddr(addr)
		if err != nil {
			if u.log != nil {
				u.log.Warnf("dropping datagram from %v: %v", addr, err)
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		if u.log != nil {
			u.log.Debugf("received %d bytes from %v", n, peer)
		}
		u.handler(&ReceivedMessage{Data: data, PeerAddr: peer})
	}
}
