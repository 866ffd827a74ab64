/*ionsrv operates an ion source power supply and a vacuum gauge over
serial links and exposes them over HTTP: live device routes, the
monitor's history/interlock/sequence routes, and Prometheus metrics.
*/
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	yml "gopkg.in/yaml.v2"

	"github.com/ionbeam-lab/ionsrv/generichttp"
	"github.com/ionbeam-lab/ionsrv/ionsource"
	"github.com/ionbeam-lab/ionsrv/maxigauge"
	"github.com/ionbeam-lab/ionsrv/monitor"
)

var (
	// Version is the version number, injected via ldflags at build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "ionsrv.yml"

	k   = koanf.New(".")
	log = logrus.New()
)

func setupconfig() {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `ionsrv runs an ion source power supply and a vacuum gauge over serial
and exposes an HTTP interface to them: device control, the measurement
monitor (history, interlock, timed beam sequences) and /metrics.

Usage:
	ionsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `ionsrv is configured via its .yaml file (ionsrv.yml in the working
directory).  Run "ionsrv mkconf" to write one with the defaults.

Config keys:
  Addr       address to listen at, e.g. :8000
  Source     Addr (serial port path or host:port) and Serial (bool)
  Gauge      Addr, Serial, and Channel (sensor 1-6 used by the monitor)
  Poll       Interval, PressureInterval, SequenceCadence (durations)
  Interlock  Min and Max pressure (mbar, inclusive) permitting source enable
  Setpoints  supply operating point applied at startup; zero fields skipped
  DataLog    optional measurement log path opened at startup

Routes are mounted at /ion (supply), /gauge (vacuum gauge) and /monitor
(poll loop, history, interlock, sequences); /endpoints lists them all and
/metrics serves Prometheus.`
	fmt.Println(str)
}

func mkconf() {
	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	var c Config
	k.Unmarshal("", &c)
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("ionsrv version %v\n", Version)
}

func run() {
	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}

	src := ionsource.NewController(c.Source.Addr, c.Source.Serial)
	if err := src.Open(); err != nil {
		// absent hardware is not fatal; routes report it per request
		log.WithError(err).Warn("ion source controller not reachable")
	} else if id, err := src.ID(); err == nil {
		log.WithField("id", id).Info("ion source controller connected")
	}

	gauge := maxigauge.New(c.Gauge.Addr, c.Gauge.Serial)
	if err := gauge.Open(); err != nil {
		log.WithError(err).Warn("vacuum gauge not reachable")
	}

	if src.Connected() {
		if err := src.Apply(c.Setpoints); err != nil {
			log.WithError(err).Warn("startup setpoints not applied")
		}
	}

	mon := monitor.New(monitor.Config{
		Source:           src,
		Gauge:            gauge,
		GaugeChannel:     c.Gauge.Channel,
		Interval:         c.Poll.Interval,
		PressureInterval: c.Poll.PressureInterval,
		SequenceCadence:  c.Poll.SequenceCadence,
		Band:             c.Interlock,
		Log:              log,
	})
	if c.DataLog != "" {
		if err := mon.StartLogging(c.DataLog); err != nil {
			log.WithError(err).Warn("data log not opened")
		}
	}
	mon.StartInterlock()

	mounts := map[string]generichttp.HTTPer{
		"/ion":     ionsource.NewHTTPWrapper(src),
		"/gauge":   maxigauge.NewHTTPWrapper(gauge, c.Gauge.Channel),
		"/monitor": monitor.NewHTTPWrapper(mon),
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	supergraph := map[string][]string{}
	for stem, httper := range mounts {
		sub := chi.NewRouter()
		httper.RT().Bind(sub)
		router.Mount(stem, sub)
		supergraph[stem] = httper.RT().Endpoints()
	}
	router.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		generichttp.EncodeJSON(w, supergraph)
	})
	router.Handle("/metrics", promhttp.Handler())

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		if err := mon.Close(); err != nil {
			log.WithError(err).Error("shutdown cleanup")
		}
		os.Exit(0)
	}()

	log.Info("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, router))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
