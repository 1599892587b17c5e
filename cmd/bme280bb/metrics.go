// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/GermanBionicSystems/bbspi/bme280"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/physic"
)

// reader is the part of bme280.Dev the exporter uses.
type reader interface {
	ReadAll() (bme280.Measurement, error)
}

type exporter struct {
	seaLevel    float64
	temperature prometheus.Gauge
	pressure    prometheus.Gauge
	humidity    prometheus.Gauge
	altitude    prometheus.Gauge
	readErrors  prometheus.Counter
}

func newExporter(reg prometheus.Registerer, seaLevel float64) *exporter {
	f := promauto.With(reg)
	return &exporter{
		seaLevel: seaLevel,
		temperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensors",
			Subsystem: "bme280",
			Name:      "temperature_celsius",
		}),
		pressure: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensors",
			Subsystem: "bme280",
			Name:      "pressure_hpa",
		}),
		humidity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensors",
			Subsystem: "bme280",
			Name:      "humidity_percent",
		}),
		altitude: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensors",
			Subsystem: "bme280",
			Name:      "altitude_meters",
		}),
		readErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sensors",
			Subsystem: "bme280",
			Name:      "read_errors_total",
		}),
	}
}

// update sets the gauges of the available values. Skipped measurements keep
// their previous value.
func (e *exporter) update(m bme280.Measurement) {
	if m.HasTemperature {
		e.temperature.Set(m.Temperature.Celsius())
	}
	if m.HasPressure {
		hPa := pressureHPa(m.Pressure)
		e.pressure.Set(hPa)
		e.altitude.Set(bme280.Altitude(hPa, e.seaLevel))
	}
	if m.HasHumidity {
		e.humidity.Set(float64(m.Humidity) / float64(physic.PercentRH))
	}
}

// run samples r every interval until ctx is done.
func (e *exporter) run(ctx context.Context, r reader, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m, err := r.ReadAll()
		if err != nil {
			e.readErrors.Inc()
			slog.Warn("reading sensor", "error", err)
		} else {
			e.update(m)
			slog.Debug("measurement", "temperature", m.Temperature, "pressure", m.Pressure, "humidity", m.Humidity)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// servePrometheus exposes the default registry on addr until ctx is done.
func servePrometheus(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	slog.Info("serving Prometheus metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func pressureHPa(p physic.Pressure) float64 {
	return float64(p) / float64(100*physic.Pascal)
}
