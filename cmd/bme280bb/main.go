// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// bme280bb reads a BME280 sensor wired to plain GPIO pins through a
// bit-banged SPI bus.
//
// With -once it prints one measurement. Otherwise it samples the sensor
// periodically and exports the values as Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/bbspi/bitbang"
	"github.com/GermanBionicSystems/bbspi/bme280"
	"github.com/GermanBionicSystems/bbspi/regspi"
	"github.com/prometheus/client_golang/prometheus"
)

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file; defaults are used when empty")
	once := flag.Bool("once", false, "print one measurement and exit")
	promaddr := flag.String("prometheus", ":9280", "Prometheus exporter address")
	level := flag.String("loglevel", "", "log level, overrides the configuration")
	format := flag.String("logformat", "", "log format, text or json, overrides the configuration")
	verbose := flag.Bool("v", false, "trace every register access at debug level")
	flag.Parse()
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected arguments: %v", flag.Args())
	}

	cfg, err := readConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *level != "" {
		cfg.Logging.Level = *level
	}
	if *format != "" {
		cfg.Logging.Format = *format
	}
	logger, err := newLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	pins, err := openPins(&cfg.Pins)
	if err != nil {
		return err
	}
	defer pins.close()
	port, err := bitbang.New(pins.clk, pins.mosi, pins.miso)
	if err != nil {
		return err
	}
	defer port.Close()
	c, err := port.Device(pins.cs, cfg.Bus.frequency(), cfg.Bus.mode(), 8)
	if err != nil {
		return err
	}
	regs := regspi.New(c)
	if *verbose {
		regs.EnableDebug(registerTrace(logger))
	}
	opts, err := cfg.Sensor.opts()
	if err != nil {
		return err
	}
	dev, err := bme280.New(regs, opts)
	if err != nil {
		return err
	}
	defer dev.Halt()
	slog.Info("sensor ready", "device", dev, "backend", cfg.Pins.Backend, "clock", port.Frequency(), "sampling", fmt.Sprintf("%+v", dev.Sampling()))

	if *once {
		return printMeasurement(os.Stdout, dev, cfg.Sensor.SeaLevelHPa)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	exp := newExporter(prometheus.DefaultRegisterer, cfg.Sensor.SeaLevelHPa)
	go exp.run(ctx, dev, cfg.Sensor.Interval)
	return servePrometheus(ctx, *promaddr)
}

// printMeasurement writes one measurement to w, one value per line.
func printMeasurement(w io.Writer, r reader, seaLevel float64) error {
	m, err := r.ReadAll()
	if err != nil {
		return err
	}
	na := "n/a"
	t, p, h, a := na, na, na, na
	if m.HasTemperature {
		t = m.Temperature.String()
	}
	if m.HasPressure {
		p = m.Pressure.String()
		a = fmt.Sprintf("%.1fm", bme280.Altitude(pressureHPa(m.Pressure), seaLevel))
	}
	if m.HasHumidity {
		h = m.Humidity.String()
	}
	_, err = fmt.Fprintf(w, "Temperature: %s\nPressure:    %s\nHumidity:    %s\nAltitude:    %s\n", t, p, h, a)
	return err
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "bme280bb: %s.\n", err)
		os.Exit(1)
	}
}
