package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"ome/internal/bus"
	"ome/internal/config"
	"ome/internal/engine"
	"ome/internal/marketdata"
	"ome/internal/net"
	"ome/internal/sequence"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file (defaults are used when empty)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("unable to load configuration")
	}
	if err := cfg.SetupLogging(); err != nil {
		log.Fatal().Err(err).Msg("unable to set up logging")
	}

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("exchange stopped")
		os.Exit(1)
	}
	log.Info().Msg("exchange stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

// run wires the engine, tickerplant and gateway around one in-process bus
// and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config) error {
	// Setup the matching engine.
	seq := sequence.NewSequencers()
	eng, err := engine.New(seq, cfg.Tickers...)
	if err != nil {
		return err
	}

	memory := bus.NewMemory()
	defer memory.Close()

	var publisher bus.Publisher = memory
	if len(cfg.Bus.Kafka.Brokers) > 0 {
		kafka := bus.NewKafka(cfg.Bus.Kafka.Brokers)
		defer func() {
			if err := kafka.Close(); err != nil {
				log.Error().Err(err).Msg("unable to close kafka writer")
			}
		}()
		publisher = bus.Tee{memory, kafka}
		log.Info().Strs("brokers", cfg.Bus.Kafka.Brokers).Msg("mirroring bus to kafka")
	}

	reports, unsubscribeReports := memory.Subscribe(bus.EntryTopic(cfg.Engine.ID), cfg.Bus.Buffer)
	defer unsubscribeReports()
	feed, unsubscribeFeed := memory.Subscribe(bus.MarketDataTopic(cfg.Engine.ID), cfg.Bus.Buffer)
	defer unsubscribeFeed()

	dispatcher := engine.NewDispatcher(eng, publisher, cfg.Engine.ID, cfg.Engine.QueueSize)
	plant := marketdata.New(publisher, cfg.Engine.ID)
	srv := net.New(
		cfg.Gateway.Address,
		cfg.Gateway.Port,
		cfg.Gateway.MaxConnections,
		cfg.Gateway.SessionQueue,
		dispatcher,
	)

	t, ctx := tomb.WithContext(ctx)
	dispatcher.Run(t)
	t.Go(func() error {
		return plant.Run(t, feed)
	})
	t.Go(func() error {
		return srv.Run(ctx, reports)
	})

	log.Info().
		Str("engine", cfg.Engine.ID).
		Strs("symbols", eng.Symbols()).
		Msg("exchange running")

	// Block on running the exchange.
	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
