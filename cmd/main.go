package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sleepywoodpecker/rp-spool/internal/config"
	"sleepywoodpecker/rp-spool/internal/logger"
	"sleepywoodpecker/rp-spool/internal/processing"
	rserial "sleepywoodpecker/rp-spool/internal/rSerial"
	"sleepywoodpecker/rp-spool/internal/spool"
	"syscall"

	"go.uber.org/zap"
)

const DEFAULT_CONFIG_PATH = "rspool.yaml"

func main() {
	configPath := flag.String("config", DEFAULT_CONFIG_PATH, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// first initialize the main logger
	logger, err := logger.NewLogger(cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Fatal exits the process, so it only runs once run's deferred cleanup is done
	if err := run(cfg, logger); err != nil {
		logger.Fatal("rspool stopped", zap.Error(err))
	}
}

// run wires the pipeline together and blocks until a shutdown signal arrives
// or the processor stops.
func run(cfg config.Config, logger *zap.Logger) error {
	// context handler for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// initialize UDP connection to grafana
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.TelegrafAddr)
	if err != nil {
		return fmt.Errorf("resolving telegraf address %s: %w", cfg.TelegrafAddr, err)
	}

	udpConn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("dialing telegraf %s: %w", cfg.TelegrafAddr, err)
	}
	defer udpConn.Close()

	// initialize the scan spool
	scanSpool, err := spool.New(spool.Config{
		Dir:     cfg.Spool.Dir,
		MaxSize: cfg.Spool.MaxSize,
		NChans:  cfg.Spool.NChans,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating scan spool: %w", err)
	}
	defer scanSpool.Close()

	if err := scanSpool.OpenForWrite(); err != nil {
		return fmt.Errorf("opening scan spool %s: %w", scanSpool.FileName(), err)
	}

	mask := spool.AllChannels(cfg.Spool.NChans)
	if len(cfg.Sampler.Channels) > 0 {
		mask = spool.NewChannelMask(cfg.Sampler.Channels...)
	}
	logger.Info("spool ready",
		zap.String("fileName", scanSpool.FileName()),
		zap.String("session", scanSpool.Session()),
		zap.String("sampledChannels", scanSpool.ChannelSubset(mask)),
	)

	// initialize the serial connection
	queueLength := cfg.Serial.MessageQueueLength
	if queueLength == 0 {
		queueLength = processing.DEFAULT_QUEUE_SIZE
	}
	stopSequence := []byte(cfg.Serial.StopSequence)
	messageQueue := make(chan []byte, queueLength)

	serialPort, err := rserial.NewRSerial(cfg.Serial.Port, cfg.Serial.Baudrate, messageQueue, logger, processing.PacketSize(cfg.Spool.NChans, stopSequence), stopSequence)
	if err != nil {
		return fmt.Errorf("opening serial port %s: %w", cfg.Serial.Port, err)
	}
	defer serialPort.Close()

	sampleStore := processing.NewDataSampleStore()
	processor := processing.NewProcessor(cfg.Processor.RawLogFile, messageQueue, logger, sampleStore, scanSpool, cfg.Spool.NChans, cfg.Processor.BatchScans)
	sampler := processing.NewSampler(cfg.Sampler.Interval, udpConn, scanSpool, sampleStore, mask, cfg.Sampler.Window, cfg.Sampler.Downsample, logger)

	// run everything
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := processor.Run(ctx); err != nil {
			logger.Error("processor stopped", zap.Error(err))
		}
	}()
	go serialPort.Run(ctx)
	go sampler.Run(ctx)

	select {
	case <-sigCh:
	case <-processorDone:
	}
	cancel()

	// the processor flushes its last batch into the spool before it is closed
	<-processorDone
	return nil
}
