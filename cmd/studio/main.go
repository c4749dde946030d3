// Command studio is the process entrypoint: it wires configuration,
// logging, persistence, the SFU worker pool, the mix coordinator, the
// process supervisor, the egress/ingest supervisors, the room session
// bus, and the signaling HTTP listener, then serves until signaled.
//
// Grounded on the teacher's signal-driven shutdown idiom
// (examples/sip-test/main.go: context.WithCancel + signal.Notify on
// SIGINT/SIGTERM cancelling that context), generalized from a one-shot
// SIP test client to a long-running server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onairhq/studio/internal/bus"
	"github.com/onairhq/studio/internal/commons"
	"github.com/onairhq/studio/internal/config"
	"github.com/onairhq/studio/internal/egress"
	"github.com/onairhq/studio/internal/ingest"
	"github.com/onairhq/studio/internal/mixcoordinator"
	"github.com/onairhq/studio/internal/orchestrator"
	"github.com/onairhq/studio/internal/store"
	"github.com/onairhq/studio/internal/wsadapter"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("studio: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := commons.NewLogger(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("studio: shutdown signal received")
		cancel()
	}()

	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	st := store.New(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	orc, err := orchestrator.New(
		cfg.SFUWorkerCount,
		uint16(cfg.RTCPortMin),
		uint16(cfg.RTCPortMax),
		cfg.PlainTransportPortOffset,
		logger,
	)
	if err != nil {
		return err
	}

	mix := mixcoordinator.New(st, cfg.FailoverTimeout)

	srtPorts := ingest.NewPortAllocator(redisClient, logger, "srt", cfg.SRTPortMin, cfg.SRTPortMax)
	if err := srtPorts.Init(ctx); err != nil {
		return err
	}
	ristPorts := ingest.NewPortAllocator(redisClient, logger, "rist", cfg.RISTPortMin, cfg.RISTPortMax)
	if err := ristPorts.Init(ctx); err != nil {
		return err
	}

	// b is constructed after the supervisors since the supervisors need a
	// Broadcaster/Alerter that only b can provide, and b needs the
	// supervisors to dispatch mix/egress/ingest events — broken by handing
	// the supervisors a pointer to b before b itself is built.
	busHolder := &busRef{}

	eg := egress.New(orc, st, logger, egress.Config{
		FFmpegPath:         "ffmpeg",
		StopGrace:          cfg.EncoderStopGrace,
		Debounce:           cfg.EncoderDebounce,
		RetryDelays:        cfg.EncoderRetryDelays,
		BusProducerMaxWait: cfg.BusProducerMaxWait,
	}, busHolder, busHolder)

	ing := ingest.New(orc, st, logger, ingest.Config{
		FFmpegPath:        "ffmpeg",
		ConnectionTimeout: cfg.ConnectionTimeout,
		ProgressTimeout:   cfg.ProgressTimeout,
		StopGrace:         cfg.EncoderStopGrace,
	}, busHolder, busHolder, srtPorts, ristPorts)

	b := bus.New(bus.Config{
		Namespace:         cfg.BusNamespace,
		JWTSigningKey:     cfg.JWTSigningKey,
		ICEServers:        cfg.ICEServers,
		IFBPollMaxRetries: cfg.IFBPollMaxRetries,
		IFBPollInterval:   cfg.IFBPollInterval,
		ChatHistoryLimit:  cfg.ChatHistoryLimit,
	}, logger, orc, mix, st, eg, ing)
	busHolder.set(b)

	mux := http.NewServeMux()
	mux.Handle(cfg.BusNamespace, wsadapter.New(b, logger))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Infow("studio: listening", "addr", cfg.ListenAddr, "namespace", cfg.BusNamespace)
		serveErrCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// busRef lets egress/ingest be constructed with a Broadcaster/Alerter
// before the Bus they ultimately point at exists yet; set is called once,
// before either supervisor is asked to do anything.
type busRef struct {
	b *bus.Bus
}

func (r *busRef) set(b *bus.Bus) { r.b = b }

func (r *busRef) BroadcastToRoom(roomID uint64, event string, payload any) {
	if r.b != nil {
		r.b.BroadcastToRoom(roomID, event, payload)
	}
}

func (r *busRef) Alert(ctx context.Context, subject, detail string) {
	if r.b != nil {
		r.b.Alert(ctx, subject, detail)
	}
}
