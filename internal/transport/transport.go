// Package transport turns a raw datagram socket into an acknowledged
// request/response exchange with bounded retransmission. It has no knowledge
// of battle semantics: acknowledgments are keyed purely by sequence number.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pokeproto/pokebattle-backend/internal/protocol"
)

var (
	ErrRetriesExhausted = errors.New("no acknowledgment after all retries")
	ErrClosed           = errors.New("transport closed")
)

// Config is the fixed retransmission surface.
type Config struct {
	// Timeout is how long one attempt waits for an acknowledgment.
	Timeout time.Duration
	// Retries is the number of retransmissions after the first send.
	Retries int
	// BufferSize is the receive buffer; a datagram larger than this is
	// truncated and will fail to parse.
	BufferSize int
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    500 * time.Millisecond,
		Retries:    3,
		BufferSize: 65535,
	}
}

// Handler receives every validated inbound application envelope. Each call
// runs on its own goroutine so a slow handler cannot stall reception.
type Handler func(env protocol.Envelope, addr net.Addr)

// Transport wraps a single datagram socket with sequence assignment,
// auto-acknowledgment of inbound sequenced envelopes, and synchronous
// send-with-acknowledgment.
type Transport struct {
	name string
	conn net.PacketConn
	cfg  Config
	log  *zap.Logger

	// seq and waiters are touched by both the sending and receiving paths.
	mu      sync.Mutex
	seq     uint64
	waiters map[uint64]chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an existing packet connection.
func New(name string, conn net.PacketConn, cfg Config, log *zap.Logger) *Transport {
	if cfg.BufferSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Transport{
		name:    name,
		conn:    conn,
		cfg:     cfg,
		log:     log.Named("transport"),
		waiters: make(map[uint64]chan struct{}),
		done:    make(chan struct{}),
	}
}

// Listen binds a UDP socket on addr and wraps it.
func Listen(name, addr string, cfg Config, log *zap.Logger) (*Transport, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return New(name, conn, cfg, log), nil
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close shuts the socket down, unblocking the receive loop and failing any
// in-flight reliable sends.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// Send assigns the next sequence number to env, stamps the sender identity,
// and transmits to addr. With reliable set it blocks until a matching
// acknowledgment arrives or timeout*(retries+1) elapses. The sequence counter
// advances on every call, successful or not.
func (t *Transport) Send(env protocol.Envelope, addr net.Addr, reliable bool) error {
	t.mu.Lock()
	t.seq++
	env.Seq = t.seq
	env.From = t.name

	data, err := protocol.Encode(env)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	if !reliable {
		t.mu.Unlock()
		_, err = t.conn.WriteTo(data, addr)
		return err
	}

	ack := make(chan struct{})
	t.waiters[env.Seq] = ack
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.waiters, env.Seq)
		t.mu.Unlock()
	}()

	for attempt := 0; attempt <= t.cfg.Retries; attempt++ {
		if attempt > 0 {
			t.log.Debug("retransmit",
				zap.Uint64("seq", env.Seq),
				zap.String("type", string(env.Type)),
				zap.Int("attempt", attempt))
		}
		if _, err := t.conn.WriteTo(data, addr); err != nil {
			return err
		}
		select {
		case <-ack:
			return nil
		case <-time.After(t.cfg.Timeout):
		case <-t.done:
			return ErrClosed
		}
	}
	return ErrRetriesExhausted
}

// Start runs the background receive loop until ctx is cancelled or the
// transport is closed. Inbound acknowledgments release their waiting sender
// and are never forwarded; every other parseable sequenced envelope is
// acknowledged before dispatch, whether or not it validates.
func (t *Transport) Start(ctx context.Context, h Handler) {
	go t.recvLoop(ctx, h)
}

func (t *Transport) recvLoop(ctx context.Context, h Handler) {
	buf := make([]byte, t.cfg.BufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		// Short read deadline so shutdown is cooperative.
		_ = t.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-t.done:
			case <-ctx.Done():
			default:
				t.log.Warn("receive loop error", zap.Error(err))
			}
			return
		}

		env, err := protocol.Unmarshal(buf[:n])
		if err != nil {
			t.log.Debug("dropping malformed datagram", zap.Error(err))
			continue
		}

		if env.Type != protocol.MsgAck && env.Seq != 0 {
			t.sendAck(env.Seq, addr)
		}

		if env.Type == protocol.MsgAck {
			t.releaseWaiter(env.AckNumber)
			continue
		}

		if err := env.Validate(); err != nil {
			t.log.Debug("dropping invalid envelope",
				zap.String("type", string(env.Type)), zap.Error(err))
			continue
		}

		go h(env, addr)
	}
}

func (t *Transport) sendAck(seq uint64, addr net.Addr) {
	data, err := protocol.Encode(protocol.Envelope{Type: protocol.MsgAck, AckNumber: seq})
	if err != nil {
		return
	}
	if _, err := t.conn.WriteTo(data, addr); err != nil {
		t.log.Debug("ack send failed", zap.Uint64("seq", seq), zap.Error(err))
	}
}

func (t *Transport) releaseWaiter(seq uint64) {
	t.mu.Lock()
	ch, ok := t.waiters[seq]
	if ok {
		delete(t.waiters, seq)
	}
	t.mu.Unlock()
	if ok {
		close(ch)
	}
}
