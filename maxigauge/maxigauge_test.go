package maxigauge

import (
	"bytes"
	"strings"
	"testing"
)

// gaugeConn plays the controller: the command phase is acked, the
// enquiry phase returns the canned data line.
type gaugeConn struct {
	wrote []string
	data  string
	buf   bytes.Buffer
}

func (c *gaugeConn) Write(p []byte) (int, error) {
	msg := strings.TrimSuffix(string(p), "\r\n")
	c.wrote = append(c.wrote, msg)
	if msg == "\x05" {
		c.buf.WriteString(c.data + "\r\n")
	} else {
		c.buf.WriteString("\x06\r\n") // ACK
	}
	return len(p), nil
}

func (c *gaugeConn) Read(p []byte) (int, error) { return c.buf.Read(p) }
func (c *gaugeConn) Close() error               { return nil }

func testSensor(conn *gaugeConn) *Sensor {
	s := New("fake", true)
	s.Conn = conn
	return s
}

func TestPressureTwoPhaseExchange(t *testing.T) {
	conn := &gaugeConn{data: "0,1.234E-04"}
	s := testSensor(conn)
	p, err := s.Pressure(3)
	if err != nil {
		t.Fatalf("pressure: %v", err)
	}
	if p != 1.234e-4 {
		t.Errorf("got %v, want 1.234e-4", p)
	}
	if len(conn.wrote) != 2 {
		t.Fatalf("expected command then enquiry, saw %v", conn.wrote)
	}
	if conn.wrote[0] != "PR3" {
		t.Errorf("command phase: got %q, want PR3", conn.wrote[0])
	}
	if conn.wrote[1] != "\x05" {
		t.Errorf("enquiry phase: got %q, want ENQ", conn.wrote[1])
	}
}

func TestPressureChannelRange(t *testing.T) {
	conn := &gaugeConn{data: "0,1.0E-03"}
	s := testSensor(conn)
	for _, ch := range []int{0, 7, -1} {
		if _, err := s.Pressure(ch); err == nil {
			t.Errorf("channel %d should be rejected", ch)
		}
	}
	if len(conn.wrote) != 0 {
		t.Errorf("rejected channels must not touch the wire, saw %v", conn.wrote)
	}
}

func TestPressureNotConnected(t *testing.T) {
	s := New("fake", true)
	if _, err := s.Pressure(3); err == nil {
		t.Error("pressure on a closed sensor should error")
	}
}

func TestPressureShortReply(t *testing.T) {
	conn := &gaugeConn{data: "just-one-field"}
	s := testSensor(conn)
	if _, err := s.Pressure(1); err == nil {
		t.Error("short gauge reply should be an error")
	}
}

func TestUnitConversions(t *testing.T) {
	if M2P(1) != 100 {
		t.Errorf("1 mbar should be 100 Pa, got %v", M2P(1))
	}
	if got := M2T(1000); got < 750 || got > 750.1 {
		t.Errorf("1000 mbar should be ~750.06 Torr, got %v", got)
	}
	if got := float64(P2M(M2P(0.5))); got != 0.5 {
		t.Errorf("Pa round trip lost precision: %v", got)
	}
}
