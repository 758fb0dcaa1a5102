package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/keyqueue/pkg/config"
	"github.com/cuemby/keyqueue/pkg/event"
	"github.com/cuemby/keyqueue/pkg/log"
	"github.com/cuemby/keyqueue/pkg/metrics"
	"github.com/cuemby/keyqueue/pkg/queue"
	"github.com/cuemby/keyqueue/pkg/storekv"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "keyqueue",
	Short: "keyqueue - a durable, per-key pub/sub queue core",
	Long: `keyqueue is an embedded, per-queue, per-key pub/sub broker: every
event is appended to a bounded-retention per-key log and fanned out to
both queue-wide and per-key live subscribers. Historical replay and live
delivery are stitched into a single subscription stream.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"keyqueue version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(demoCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue core as a long-lived process",
	Long: `serve opens the embedded store, creates any queues named in the
config file's "default" list, starts the metrics collector, and exposes
a Prometheus /metrics endpoint. It blocks until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		var cfg *config.Config
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
		} else {
			cfg = &config.Config{}
		}

		opts := storekv.Options{}
		if cfg.Persistent() {
			opts.Path = *cfg.DBPath
		}
		metrics.SetVersion(Version)

		store, err := storekv.Open(opts)
		if err != nil {
			metrics.RegisterComponent("store", false, err.Error())
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		metrics.RegisterComponent("store", true, "open")

		mgr := queue.NewManager(store, func() event.Event { return event.NewEnvelope("", nil) }, cfg.MaxKeyUpdates)

		for _, name := range cfg.Default {
			if err := mgr.CreateQueue(name); err != nil {
				metrics.RegisterComponent("queue:"+name, false, err.Error())
				return fmt.Errorf("create default queue %q: %w", name, err)
			}
			metrics.RegisterComponent("queue:"+name, true, "created")
			logger := log.WithComponent("serve")
			logger.Info().Str("queue", name).Msg("queue created")
		}

		collector := queue.NewMetricsCollector(mgr)
		collector.Start()
		defer collector.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			log.Logger.Error().Err(err).Msg("server error")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus metrics endpoint")
}

var demoCmd = &cobra.Command{
	Use:   "demo QUEUE KEY",
	Short: "Publish a few events to QUEUE/KEY and print a replay+live subscription",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, key := args[0], args[1]
		count, _ := cmd.Flags().GetInt("count")

		store, err := storekv.Open(storekv.Options{})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		mgr := queue.NewManager(store, func() event.Event { return event.NewEnvelope("", nil) }, nil)
		if err := mgr.CreateQueue(name); err != nil {
			return fmt.Errorf("create queue: %w", err)
		}

		for i := 0; i < count; i++ {
			body := fmt.Sprintf("payload-%d-%s", i, uuid.New().String())
			ev := event.NewEnvelope(key, []byte(body))
			ok, seq, err := mgr.SendToQueue(name, ev)
			if err != nil {
				return fmt.Errorf("send_to_queue: %w", err)
			}
			if !ok {
				return fmt.Errorf("queue %q vanished mid-publish", name)
			}
			fmt.Printf("published %s/%s seq=%d\n", name, key, *seq)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		sub := mgr.SubscribeQueueByID(ctx, name, key, event.First())
		defer sub.Close()

		preloaded, _ := sub.Preloaded()
		fmt.Printf("replaying %d historical events\n", preloaded)
		for msg := range sub.Stream() {
			if msg.Err != nil {
				return fmt.Errorf("subscription stream: %w", msg.Err)
			}
			fmt.Printf("event key=%s seq=%d terminal=%v\n", msg.Event.Key(), msg.Event.Sequence(), msg.Event.Terminal())
			if msg.Event.Terminal() {
				break
			}
		}
		return nil
	},
}

func init() {
	demoCmd.Flags().Int("count", 3, "Number of events to publish before replaying")
}
