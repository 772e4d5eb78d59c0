package transport

import (
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess delivers queued packets from a background goroutine.
	AutoProcess bool
	// ProcessInterval defaults to 1ms.
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns a pipe that delivers packets automatically.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{AutoProcess: true, ProcessInterval: time.Millisecond}
}

// Pipe is an in-memory datagram link between two endpoints built on the
// pion test bridge. Each endpoint is exposed as a net.PacketConn with a
// fixed IPv6 address so it can back a UDP transport.
type Pipe struct {
	bridge *test.Bridge
	conns  [2]*PipePacketConn

	mu       sync.Mutex
	dropRate float64
	rng      *rand.Rand
	closed   bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

var pipeIPs = [2]netip.Addr{
	netip.MustParseAddr("fd00::1"),
	netip.MustParseAddr("fd00::2"),
}

// NewPipe returns a pipe with DefaultPipeConfig.
func NewPipe() *Pipe { return NewPipeWithConfig(DefaultPipeConfig()) }

// NewPipeWithConfig is NewPipe with explicit link settings.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}
	raw := [2]net.Conn{p.bridge.GetConn0(), p.bridge.GetConn1()}
	for i := range p.conns {
		p.conns[i] = &PipePacketConn{
			conn:  raw[i],
			local: p.Addr(i).UDPAddr(0),
			peer:  p.Addr(1 - i).UDPAddr(0),
			pipe:  p,
		}
	}

	if config.AutoProcess {
		interval := config.ProcessInterval
		if interval == 0 {
			interval = time.Millisecond
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-p.stopCh:
					return
				case <-ticker.C:
					p.bridge.Tick()
				}
			}
		}()
	}
	return p
}

// Conn returns endpoint i (0 or 1).
func (p *Pipe) Conn(i int) *PipePacketConn { return p.conns[i] }

// Addr returns the peer address of endpoint i.
func (p *Pipe) Addr(i int) PeerAddress { return UDPPeer(pipeIPs[i], DefaultPort, "") }

// SetDropRate makes each write vanish with probability rate.
func (p *Pipe) SetDropRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropRate = rate
}

func (p *Pipe) shouldDrop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropRate > 0 && p.rng.Float64() < p.dropRate
}

// Process delivers every queued packet and returns how many moved.
func (p *Pipe) Process() int {
	total := 0
	for {
		n := p.bridge.Tick()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Close stops delivery and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	err0 := p.conns[0].Close()
	err1 := p.conns[1].Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipePacketConn adapts one bridge endpoint to net.PacketConn. The pipe
// has a single peer, so WriteTo ignores its address argument.
type PipePacketConn struct {
	conn        net.Conn
	local, peer *net.UDPAddr
	pipe        *Pipe
}

func (c *PipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peer, err
}

func (c *PipePacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	if c.pipe.shouldDrop() {
		return len(b), nil
	}
	return c.conn.Write(b)
}

func (c *PipePacketConn) Close() error                       { return c.conn.Close() }
func (c *PipePacketConn) LocalAddr() net.Addr                { return c.local }
func (c *PipePacketConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *PipePacketConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

var _ net.PacketConn = (*PipePacketConn)(nil)
