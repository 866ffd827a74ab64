/*Package comm provides the low-level connection type shared by the
instruments in this module.

A RemoteDevice wraps either an RS232 serial port or a TCP socket (for
devices hung off a terminal server) and speaks line-oriented ASCII with
configurable transmit and receive terminators.  The ion source controller
frames with a bare carriage return; the vacuum gauge frames with CRLF.

Instrument packages embed *RemoteDevice and build their command sets on
Send/Recv/SendRecv.  The device is safe for concurrent use; the polling
loops and the timed beam sequence share one handle per physical device
and are serialized by an internal mutex.
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// CR is the carriage return terminator used by the ion source controller
	CR = []byte("\r")

	// CRLF is the terminator pair used by the vacuum gauge
	CRLF = []byte("\r\n")

	// ErrNotConnected is returned when Send or Recv is called on a device
	// whose connection is nil (never opened, or closed)
	ErrNotConnected = errors.New("not connected to remote device")

	// ErrTerminatorNotFound is returned when a response does not end with
	// the expected receive terminator
	ErrTerminatorNotFound = errors.New("termination bytes not found in response")
)

// SerialConf returns the serial configuration used by both instruments:
// 9600 baud, 8N1, one second read timeout.
func SerialConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		ReadTimeout: 1 * time.Second}
}

// RemoteDevice is a connection to a single physical instrument.  There is
// at most one RemoteDevice per device; all traffic flows through it.
type RemoteDevice struct {
	// Addr is the filesystem path of the serial port, or host:port for TCP
	Addr string

	// IsSerial selects RS232 (true) or TCP (false)
	IsSerial bool

	// Conn is the underlying connection, nil when closed
	Conn io.ReadWriteCloser

	// SerCfg is the serial port configuration; ignored for TCP
	SerCfg *serial.Config

	tx, rx []byte
	mu     sync.Mutex
}

// NewRemoteDevice returns a device at the given address.  Nil terminators
// default to a bare carriage return in both directions.
func NewRemoteDevice(addr string, isSerial bool, tx, rx []byte) *RemoteDevice {
	if tx == nil {
		tx = CR
	}
	if rx == nil {
		rx = CR
	}
	return &RemoteDevice{
		Addr:     addr,
		IsSerial: isSerial,
		SerCfg:   SerialConf(addr),
		tx:       tx,
		rx:       rx}
}

// Open establishes the connection.  Opens are retried with exponential
// backoff; some USB-serial adapters refuse the port briefly after it was
// last held open.
func (rd *RemoteDevice) Open() error {
	var lastErr error
	op := func() error {
		err := rd.open()
		if err != nil {
			lastErr = err
			// refused means the port exists but is briefly held; other
			// failures (missing node, permissions) will not improve
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				return err
			}
			return nil
		}
		lastErr = nil
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("open %s: %w", rd.Addr, err)
	}
	if lastErr != nil {
		return fmt.Errorf("open %s: %w", rd.Addr, lastErr)
	}
	return nil
}

func (rd *RemoteDevice) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if rd.IsSerial {
		conn, err = serial.OpenPort(rd.SerCfg)
	} else {
		conn, err = TCPSetup(rd.Addr, 3*time.Second)
	}
	if err != nil {
		return err
	}
	rd.Conn = conn
	return nil
}

// Close closes the connection and nils it so that Connected reports false
func (rd *RemoteDevice) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	if err == nil {
		rd.Conn = nil
	}
	return err
}

// Connected reports whether the device has an open connection
func (rd *RemoteDevice) Connected() bool {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.Conn != nil
}

// Send writes b followed by the transmit terminator
func (rd *RemoteDevice) Send(b []byte) error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.send(b)
}

func (rd *RemoteDevice) send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	msg := make([]byte, 0, len(b)+len(rd.tx))
	msg = append(msg, b...)
	msg = append(msg, rd.tx...)
	_, err := rd.Conn.Write(msg)
	return err
}

// Recv reads one response line and strips the receive terminator
func (rd *RemoteDevice) Recv() ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.recv()
}

func (rd *RemoteDevice) recv() ([]byte, error) {
	if rd.Conn == nil {
		return nil, ErrNotConnected
	}
	last := rd.rx[len(rd.rx)-1]
	buf, err := bufio.NewReader(rd.Conn).ReadBytes(last)
	if err != nil {
		return nil, err
	}
	if !bytes.HasSuffix(buf, rd.rx) {
		return buf, ErrTerminatorNotFound
	}
	return buf[:len(buf)-len(rd.rx)], nil
}

// SendRecv sends one command and returns the one-line response.  The
// exchange is atomic with respect to other users of the device.
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if err := rd.send(b); err != nil {
		return nil, err
	}
	return rd.recv()
}

// Txn runs fcn while holding the device lock, for multi-message exchanges
// like the gauge's command-then-enquiry sequence.  fcn must use RawSend
// and RawRecv, not Send/Recv, or it will deadlock.
func (rd *RemoteDevice) Txn(fcn func() error) error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return fcn()
}

// RawSend is send without locking, for use inside Txn
func (rd *RemoteDevice) RawSend(b []byte) error { return rd.send(b) }

// RawRecv is recv without locking, for use inside Txn
func (rd *RemoteDevice) RawRecv() ([]byte, error) { return rd.recv() }

// TCPSetup opens a new TCP connection and sets a timeout on connect, read,
// and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
