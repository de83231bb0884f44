// Package link talks to an external motor-driver board over a serial line.
//
// The protocol is line oriented and newline terminated. The host sends
//
//	S <speed>   drive at speed in [-100, 100]
//	B           brake
//	C           coast
//
// and the board answers every command with OK or ERR <message>. Between
// replies the board streams E <a><b> whenever a hall line changes, with
// a and b the digits 0 or 1.
//
// A Board is both a motor.Driver and a quadrature.Lines source; its reader
// goroutine is the edge context for the decoder.
package link

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"

	"github.com/san-kum/hallservo/internal/motor"
	"github.com/san-kum/hallservo/internal/quadrature"
)

var (
	// ErrClosed is returned for commands sent after the line went down.
	ErrClosed = errors.New("link: closed")
	// ErrAckTimeout is returned when the board does not answer a command.
	ErrAckTimeout = errors.New("link: no reply from board")
	// ErrRejected wraps an ERR reply.
	ErrRejected = errors.New("link: board rejected command")
	// ErrOpen is returned when the port could not be opened in time.
	ErrOpen = errors.New("link: open port")
)

const terminator = '\n'

type Config struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	AckTimeout  time.Duration `yaml:"ack_timeout"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Port:        "/dev/ttyACM0",
		Baud:        115200,
		AckTimeout:  100 * time.Millisecond,
		OpenTimeout: 3 * time.Second,
	}
}

var openPort = func(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

// Dial opens the serial port, retrying with exponential backoff until
// OpenTimeout elapses. Boards that reset on open tend to refuse the first
// few attempts.
func Dial(cfg Config) (*Board, error) {
	var conn io.ReadWriteCloser
	op := func() error {
		c, err := openPort(&serial.Config{Name: cfg.Port, Baud: cfg.Baud})
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      cfg.OpenTimeout,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, cfg.Port, err)
	}
	return New(conn, cfg.AckTimeout), nil
}

type Board struct {
	conn       io.ReadWriteCloser
	ackTimeout time.Duration

	// one command in flight
	cmd  sync.Mutex
	acks chan error

	phase     atomic.Uint32
	notify    atomic.Pointer[func()]
	malformed atomic.Uint64

	done    chan struct{}
	readErr error
	once    sync.Once
}

var (
	_ motor.Driver     = (*Board)(nil)
	_ quadrature.Lines = (*Board)(nil)
)

// New wraps an open connection and starts its reader.
func New(conn io.ReadWriteCloser, ackTimeout time.Duration) *Board {
	b := &Board{
		conn:       conn,
		ackTimeout: ackTimeout,
		acks:       make(chan error, 1),
		done:       make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *Board) readLoop() {
	sc := bufio.NewScanner(b.conn)
	for sc.Scan() {
		b.handle(strings.TrimSpace(sc.Text()))
	}
	b.readErr = sc.Err()
	if b.readErr == nil {
		b.readErr = io.EOF
	}
	close(b.done)
}

func (b *Board) handle(line string) {
	switch {
	case line == "":
	case line == "OK":
		b.ack(nil)
	case strings.HasPrefix(line, "ERR"):
		msg := strings.TrimSpace(strings.TrimPrefix(line, "ERR"))
		b.ack(fmt.Errorf("%w: %s", ErrRejected, msg))
	case strings.HasPrefix(line, "E "):
		p, ok := parsePhase(strings.TrimPrefix(line, "E "))
		if !ok {
			b.malformed.Add(1)
			return
		}
		b.phase.Store(uint32(p))
		if fn := b.notify.Load(); fn != nil {
			(*fn)()
		}
	default:
		b.malformed.Add(1)
	}
}

// ack drops replies nobody waits for.
func (b *Board) ack(err error) {
	select {
	case b.acks <- err:
	default:
		b.malformed.Add(1)
	}
}

func parsePhase(s string) (quadrature.Phase, bool) {
	if len(s) != 2 {
		return 0, false
	}
	var bits [2]bool
	for i := range bits {
		switch s[i] {
		case '0':
		case '1':
			bits[i] = true
		default:
			return 0, false
		}
	}
	return quadrature.PhaseOf(bits[0], bits[1]), true
}

func (b *Board) send(cmd string) error {
	b.cmd.Lock()
	defer b.cmd.Unlock()

	select {
	case <-b.done:
		return fmt.Errorf("%w: %v", ErrClosed, b.readErr)
	default:
	}
	// a late reply to an abandoned command
	select {
	case <-b.acks:
	default:
	}

	if _, err := io.WriteString(b.conn, cmd+string(terminator)); err != nil {
		return fmt.Errorf("link: send %q: %w", cmd, err)
	}
	timer := time.NewTimer(b.ackTimeout)
	defer timer.Stop()
	select {
	case err := <-b.acks:
		if err != nil {
			return fmt.Errorf("%q: %w", cmd, err)
		}
		return nil
	case <-b.done:
		return fmt.Errorf("%w: %v", ErrClosed, b.readErr)
	case <-timer.C:
		return fmt.Errorf("%w after %v: %q", ErrAckTimeout, b.ackTimeout, cmd)
	}
}

func (b *Board) SetSpeed(speed float64) error {
	if math.IsNaN(speed) {
		return motor.ErrInvalidSpeed
	}
	speed = motor.ClampSpeed(speed)
	if speed == 0 {
		return b.Stop()
	}
	return b.send(fmt.Sprintf("S %.1f", speed))
}

func (b *Board) Stop() error  { return b.send("B") }
func (b *Board) Coast() error { return b.send("C") }

// Read returns the hall line levels from the most recent edge report.
func (b *Board) Read() (a, bl bool) {
	p := quadrature.Phase(b.phase.Load())
	return p&2 != 0, p&1 != 0
}

// Notify registers fn to run on the reader goroutine after every edge.
func (b *Board) Notify(fn func()) error {
	b.notify.Store(&fn)
	return nil
}

// Malformed counts lines the reader could not interpret.
func (b *Board) Malformed() uint64 { return b.malformed.Load() }

// Done is closed once the reader has stopped.
func (b *Board) Done() <-chan struct{} { return b.done }

func (b *Board) Close() error {
	var err error
	b.once.Do(func() {
		b.notify.Store(nil)
		err = b.conn.Close()
	})
	return err
}
