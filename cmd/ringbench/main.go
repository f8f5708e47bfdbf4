// Command ringbench drives a ring built from a TOML configuration with
// random payloads and reports throughput.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fastrand"

	"github.com/five-vee/ringpool"
	"github.com/five-vee/ringpool/cfg"
	"github.com/five-vee/ringpool/telemetry"
)

type message struct {
	payload []byte
	sum     uint64
}

func main() {
	flag.Parse()

	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("wait_strategy", cfg.Config.Ring.WaitStrategy).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Benchmark failed")
	}
}

func run(ctx context.Context) error {
	var handled atomic.Uint64
	h := func(_ int64, m *message) error {
		var sum uint64
		for _, b := range m.payload {
			sum += uint64(b)
		}
		if sum != m.sum {
			return fmt.Errorf("checksum %d, want %d", sum, m.sum)
		}
		handled.Add(1)
		return nil
	}

	b, err := ringpool.FromConfig(cfg.Config.Ring, h)
	if err != nil {
		return err
	}
	r, err := b.Build()
	if err != nil {
		return err
	}

	if cfg.Config.Prometheus.Enabled {
		registry, err := telemetry.NewRegistry(map[string]telemetry.StatsProvider{"ringbench": r})
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              cfg.Config.Prometheus.BindAddress,
			Handler:           metricsRouter(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("address", srv.Addr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := r.Start(); err != nil {
		return err
	}

	items := cfg.Config.Bench.Items
	payloadBytes := cfg.Config.Bench.PayloadBytes
	start := time.Now()
	var published int64
	for ; published < items; published++ {
		if published&0xffff == 0 && ctx.Err() != nil {
			log.Warn().Int64("published", published).Msg("Interrupted")
			break
		}
		err := r.Write(func(_ int64, m *message) {
			if cap(m.payload) < payloadBytes {
				m.payload = make([]byte, payloadBytes)
			}
			m.payload = m.payload[:payloadBytes]
			m.sum = 0
			for i := range m.payload {
				m.payload[i] = byte(fastrand.Uint32n(256))
				m.sum += uint64(m.payload[i])
			}
		})
		if err != nil {
			return err
		}
	}

	drainErr := r.Drain(cfg.Config.Bench.DrainTimeout())
	elapsed := time.Since(start)
	s := r.Stats()

	event := log.Info().
		Int64("published", s.Published()).
		Uint64("handled", handled.Load()).
		Dur("elapsed", elapsed).
		Int64("producer_stalls", s.ProducerStalls)
	if elapsed > 0 {
		event = event.Float64("items_per_sec", float64(published)/elapsed.Seconds())
	}
	event.Msg("Benchmark finished")
	for _, g := range s.Groups {
		log.Debug().
			Int("group", g.Index).
			Str("kind", g.Kind).
			Int("workers", g.Workers).
			Int64("cursor", g.Cursor).
			Int64("processed", g.Processed).
			Int64("faults", g.Faults).
			Msg("Consumer group")
	}
	return drainErr
}

func metricsRouter(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return r
}
