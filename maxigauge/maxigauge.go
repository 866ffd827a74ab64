/*Package maxigauge reads a six-channel Pfeiffer vacuum gauge controller.

The protocol is two-phase: a two-letter mnemonic (plus channel digit) is
sent CRLF-terminated and acknowledged, then an enquiry byte (ENQ, 0x05)
triggers the actual data transfer.  Replies are comma-separated with the
requested value in the second field.
*/
package maxigauge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ionbeam-lab/ionsrv/comm"
)

// enq is the enquiry sequence that pulls previously requested data
var enq = []byte{0x05}

// settle is the pause between the command phase and the enquiry phase;
// the controller needs it to stage the reply.
const settle = 100 * time.Millisecond

// Channels is the number of sensor channels on the controller
const Channels = 6

// Sensor is a connection to the gauge controller
type Sensor struct {
	*comm.RemoteDevice
}

// New returns a Sensor for the controller at addr
func New(addr string, isSerial bool) *Sensor {
	rd := comm.NewRemoteDevice(addr, isSerial, comm.CRLF, comm.CRLF)
	return &Sensor{RemoteDevice: rd}
}

// transfer runs one command/enquiry exchange and returns the data line
func (s *Sensor) transfer(cmd string) (string, error) {
	var data []byte
	err := s.Txn(func() error {
		if err := s.RawSend([]byte(cmd)); err != nil {
			return err
		}
		time.Sleep(settle)
		// the ack line is discarded; an absent ack only matters if the
		// data transfer also fails
		s.RawRecv()
		if err := s.RawSend(enq); err != nil {
			return err
		}
		time.Sleep(settle)
		var err error
		data, err = s.RawRecv()
		return err
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Pressure reads one channel (1-6) and returns the value in mbar
func (s *Sensor) Pressure(channel int) (float64, error) {
	if channel < 1 || channel > Channels {
		return 0, fmt.Errorf("channel %d out of range [1,%d]", channel, Channels)
	}
	resp, err := s.transfer("PR" + strconv.Itoa(channel))
	if err != nil {
		return 0, err
	}
	fields := strings.Split(strings.TrimSpace(resp), ",")
	if len(fields) < 2 {
		return 0, fmt.Errorf("short gauge reply %q", resp)
	}
	return strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
}

// Identification queries the transmitter identification of all channels
func (s *Sensor) Identification() (string, error) {
	return s.transfer("TID")
}

// Raw passes one mnemonic through the command/enquiry exchange verbatim
func (s *Sensor) Raw(cmd string) (string, error) {
	return s.transfer(cmd)
}
