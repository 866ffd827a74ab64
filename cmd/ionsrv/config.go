package main

import (
	"time"

	"github.com/ionbeam-lab/ionsrv/ionsource"
	"github.com/ionbeam-lab/ionsrv/monitor"
)

// DeviceSetup locates one serial-attached instrument
type DeviceSetup struct {
	// Addr is the serial port path, or host:port when Serial is false
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Serial selects RS232 (true) or a terminal-server TCP socket (false)
	Serial bool `koanf:"Serial" yaml:"Serial"`
}

// GaugeSetup locates the vacuum gauge and names the sensor channel the
// monitor reads
type GaugeSetup struct {
	Addr    string `koanf:"Addr" yaml:"Addr"`
	Serial  bool   `koanf:"Serial" yaml:"Serial"`
	Channel int    `koanf:"Channel" yaml:"Channel"`
}

// PollSetup holds the three cadences of the monitor
type PollSetup struct {
	// Interval is the main poll loop cadence
	Interval time.Duration `koanf:"Interval" yaml:"Interval"`

	// PressureInterval is the interlock cadence
	PressureInterval time.Duration `koanf:"PressureInterval" yaml:"PressureInterval"`

	// SequenceCadence is the force-read cadence inside a beam sequence
	SequenceCadence time.Duration `koanf:"SequenceCadence" yaml:"SequenceCadence"`
}

// Config is the YAML-populated configuration of the server
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	Source DeviceSetup `koanf:"Source" yaml:"Source"`
	Gauge  GaugeSetup  `koanf:"Gauge" yaml:"Gauge"`
	Poll   PollSetup   `koanf:"Poll" yaml:"Poll"`

	// Interlock is the pressure band (mbar, inclusive) inside which
	// source enable is permitted
	Interlock monitor.Band `koanf:"Interlock" yaml:"Interlock"`

	// Setpoints are applied to the supply at startup when it is
	// reachable; zero fields are skipped
	Setpoints ionsource.Setpoints `koanf:"Setpoints" yaml:"Setpoints"`

	// DataLog, when set, opens a measurement log at this path on startup
	DataLog string `koanf:"DataLog" yaml:"DataLog"`
}

func defaultConfig() Config {
	return Config{
		Addr:   ":8000",
		Source: DeviceSetup{Addr: "/dev/ttyUSB0", Serial: true},
		Gauge:  GaugeSetup{Addr: "/dev/ttyUSB1", Serial: true, Channel: 3},
		Poll: PollSetup{
			Interval:         time.Second,
			PressureInterval: 500 * time.Millisecond,
			SequenceCadence:  500 * time.Millisecond,
		},
		Interlock: monitor.Band{Min: 3e-4, Max: 10e-4},
		Setpoints: ionsource.DefaultSetpoints(),
	}
}
