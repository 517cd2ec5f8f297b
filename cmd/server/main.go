package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"aggregator/api/grpcserver"
	pb "aggregator/api/pb"
	"aggregator/api/wsserver"
	"aggregator/config"
	"aggregator/infra/feed"
	"aggregator/infra/journal"
	"aggregator/infra/kafka"
	"aggregator/infra/store"
	"aggregator/jobs/broadcaster"
	"aggregator/service"
	"aggregator/snapshot"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---------------- Store ----------------

	st := store.New()

	var jobs sync.WaitGroup

	// ---------------- Checkpoints ----------------

	if cfg.CheckpointDir != "" {
		cp, err := snapshot.Open(cfg.CheckpointDir)
		if err != nil {
			log.Fatalf("checkpoint open failed: %v", err)
		}
		defer cp.Close()

		n, err := service.Restore(st, cp)
		if err != nil {
			log.Fatalf("checkpoint restore failed: %v", err)
		}
		logger.Printf("[checkpoint] restored %d exchanges from %s", n, cfg.CheckpointDir)

		done := service.StartCheckpointJob(ctx, st, cp, cfg.CheckpointInterval, logger)
		jobs.Add(1)
		go func() { defer jobs.Done(); <-done }()
	}

	// ---------------- Feeds ----------------

	var jr *journal.Journal
	if cfg.JournalDir != "" && recordsLive(cfg) {
		jr, err = journal.Open(journal.Config{Dir: cfg.JournalDir})
		if err != nil {
			log.Fatalf("journal open failed: %v", err)
		}
		defer jr.Close()
		logger.Printf("[journal] recording to %s from seq %d", cfg.JournalDir, jr.LastSeq()+1)

		if cfg.JournalRetention > 0 {
			interval := min(time.Minute, cfg.JournalRetention)
			done := journal.StartRetentionJob(ctx, jr, cfg.JournalRetention, interval, logger)
			jobs.Add(1)
			go func() { defer jobs.Done(); <-done }()
		}
	}

	feeds, writers, err := buildFeeds(cfg, st, jr, logger)
	if err != nil {
		log.Fatalf("feeds: %v", err)
	}
	if cfg.StdinForward {
		// not joined on shutdown: a blocked stdin read cannot be interrupted
		go func() {
			if err := feed.ForwardLines(ctx, os.Stdin, logger, writers...); err != nil && ctx.Err() == nil {
				logger.Printf("[feed] stdin forwarding stopped: %v", err)
			}
		}()
		logger.Printf("[feed] forwarding stdin lines to %d feeds", len(writers))
	}
	jobs.Add(1)
	go func() {
		defer jobs.Done()
		feed.Run(ctx, logger, feeds...)
	}()

	// ---------------- Service ----------------

	agg := service.NewAggregator(st, service.Config{
		Mode:        cfg.Mode,
		Depth:       cfg.Depth,
		SendBuffer:  cfg.SendBuffer,
		SendTimeout: cfg.SendTimeout,
		Logger:      logger,
	})

	// ---------------- Kafka broadcaster ----------------

	if len(cfg.KafkaBrokers) > 0 {
		bc, err := broadcaster.New(agg, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaInterval, logger)
		if err != nil {
			log.Fatalf("broadcaster init failed: %v", err)
		}
		defer bc.Close()
		jobs.Add(1)
		go func() { defer jobs.Done(); bc.Run(ctx) }()
	}

	// ---------------- Websocket ----------------

	if cfg.WSAddr != "" {
		hub := wsserver.NewHub(logger)
		go hub.Run(ctx)
		go wsserver.Pump(ctx, agg, hub)

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.ServeWS)
		httpSrv := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			logger.Printf("[ws] listening on %s", cfg.WSAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("ws server exited: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}

	grpcSrv := grpc.NewServer(pb.ServerOption())
	pb.RegisterOrderbookAggregatorServer(grpcSrv, grpcserver.NewServer(agg, logger))

	go func() {
		<-ctx.Done()
		logger.Println("[gRPC] shutting down")
		agg.Close()

		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Println("[gRPC] graceful stop timed out, forcing")
			grpcSrv.Stop()
		}
	}()

	logger.Printf("[gRPC] aggregator running on %s mode=%s feeds=%d", cfg.GRPCAddr, cfg.Mode, len(feeds))
	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatalf("gRPC server exited: %v", err)
	}

	stop()
	jobs.Wait()
}

// recordsLive reports whether the journal should record: only when no
// feed is replaying from it.
func recordsLive(cfg config.Config) bool {
	for _, fc := range cfg.Feeds {
		if fc.Transport == config.TransportJournal {
			return false
		}
	}
	return true
}

func buildFeeds(cfg config.Config, st *store.Store, jr *journal.Journal, logger *log.Logger) ([]feed.Feed, []feed.Writer, error) {
	feeds := make([]feed.Feed, 0, len(cfg.Feeds))
	writers := make([]feed.Writer, 0, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		dec, err := feed.NewDecoder(fc.Decoder)
		if err != nil {
			return nil, nil, err
		}
		var init []byte
		if fc.Init != "" {
			init = []byte(fc.Init)
		}
		adapter := feed.NewAdapter(feed.AdapterConfig{
			Exchange:    fc.Name,
			Decoder:     dec,
			InitMessage: init,
			Logger:      logger,
		}, st)

		writers = append(writers, adapter)

		var h feed.Handler = adapter
		var src feed.Source
		switch fc.Transport {
		case config.TransportJournal:
			src = journal.NewReplaySource(cfg.JournalDir, cfg.JournalPace, logger)
		case config.TransportKafka:
			src = kafka.NewSource(kafka.Config{
				Brokers: cfg.KafkaBrokers,
				Topic:   fc.Topic,
				GroupID: cfg.KafkaGroup + "." + fc.Name,
				Logger:  logger,
			})
		default:
			src = feed.NewWebSocketSource(feed.WebSocketConfig{URL: fc.URL, Logger: logger})
		}
		if jr != nil {
			h = journal.NewRecorder(h, jr, logger)
		}
		feeds = append(feeds, feed.Feed{Handler: h, Source: src})
		logger.Printf("[feed] %s via %s", fc.Name, fc.Transport)
	}
	return feeds, writers, nil
}
