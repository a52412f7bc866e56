package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/nmdata575/cryptominer-pro/internal/coin"
	"github.com/nmdata575/cryptominer-pro/internal/history"
	"github.com/nmdata575/cryptominer-pro/internal/metrics"
	"github.com/nmdata575/cryptominer-pro/internal/miner"
)

type options struct {
	Pool string `short:"o" long:"pool" description:"Pool address as host:port" required:"true"`
	User string `short:"u" long:"user" description:"Pool username (wallet.worker)" required:"true"`
	Pass string `short:"p" long:"pass" description:"Pool password" default:"x"`
	Coin string `short:"c" long:"coin" description:"Coin to mine (ltc, doge, vtc, btc, xmr, wow)" default:"ltc"`

	Workers    int  `short:"t" long:"workers" description:"Hashing threads (default: logical cores)"`
	MaxWorkers int  `long:"max-workers" description:"Thread cap for the adaptive controller"`
	RollNTime  bool `long:"roll-ntime" description:"Allow rolling ntime when a nonce slice is exhausted"`

	RandomXFullMem bool `long:"randomx-full-mem" description:"Use the full RandomX dataset (~2 GiB)"`
	MaxInflight    int  `long:"max-inflight" description:"Concurrent unacknowledged submissions" default:"32"`

	Listen    string `long:"listen" description:"Status/metrics listen address" default:"127.0.0.1:8180"`
	HistoryDB string `long:"history-db" description:"Optional bolt file for snapshot history"`
	Debug     bool   `short:"d" long:"debug" description:"Verbose logging"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	logger, err := buildLogger(opts.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(opts, logger); err != nil {
		logger.Fatal("miner exited", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(opts options, logger *zap.Logger) error {
	def, err := coin.Get(opts.Coin)
	if err != nil {
		return err
	}

	host, portStr, err := net.SplitHostPort(opts.Pool)
	if err != nil {
		return fmt.Errorf("invalid pool address %q: %w", opts.Pool, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid pool port %q: %w", portStr, err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	m, err := miner.New(miner.Config{
		Coin:           def,
		PoolHost:       host,
		PoolPort:       port,
		User:           opts.User,
		Pass:           opts.Pass,
		Workers:        workers,
		MaxWorkers:     opts.MaxWorkers,
		RollNTime:      opts.RollNTime,
		RandomXFullMem: opts.RandomXFullMem,
		MaxInflight:    opts.MaxInflight,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	var recorder *history.Recorder
	if opts.HistoryDB != "" {
		recorder, err = history.Open(opts.HistoryDB, m.Snapshot, logger.Named("history"))
		if err != nil {
			return err
		}
		defer recorder.Close()
		go recorder.Run(ctx)
	}

	go serveStatus(opts.Listen, m, recorder, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", zap.String("signal", s.String()))
	return nil
}

// serveStatus exposes the status snapshot, the history records and the
// prometheus metrics over HTTP.
func serveStatus(listen string, m *miner.Miner, recorder *history.Recorder, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})

	if recorder != nil {
		mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
			records, err := recorder.Records(1440)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(records)
		})
	}

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("status server listening", zap.String("addr", listen))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("status server stopped", zap.Error(err))
	}
}
