// Command pluginrtd hosts the plugin runtime: it builds every plugin
// registered in the global plugin registry, serves the RPC Binding Layer
// over HTTP and WebSocket, and exposes /healthz and /metrics. A second
// subcommand, depgraph, exposes the dependency-map compiler helper
// (spec.md §6) standalone, for use from a build pipeline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/streamspace-dev/pluginrt/internal/config"
	"github.com/streamspace-dev/pluginrt/internal/depgraph"
	"github.com/streamspace-dev/pluginrt/internal/host"
	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/server"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
	"github.com/streamspace-dev/pluginrt/internal/telemetry/natscons"
	"github.com/streamspace-dev/pluginrt/internal/telemetry/otelbridge"
	"github.com/streamspace-dev/pluginrt/internal/telemetry/rediscons"
	"github.com/streamspace-dev/pluginrt/internal/transport/httptransport"
	"github.com/streamspace-dev/pluginrt/internal/transport/natstransport"
	"github.com/streamspace-dev/pluginrt/internal/transport/wstransport"
)

func main() {
	root := &cobra.Command{
		Use:   "pluginrtd",
		Short: "Plugin runtime daemon",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newDepgraphCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the plugin runtime daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to an optional YAML config file")
	return cmd
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Initialize(cfg.LogLevel, true)
	log := logger.Log

	telemetryRoot := telemetry.NewClient("pluginrt", telemetry.Resource{Platform: "server", Hostname: hostname()})
	closeConsumers := wireConsumers(telemetryRoot, cfg)
	defer closeConsumers()

	// wsServer is constructed after h because it needs h as its Registry,
	// while h needs a pusher factory that reaches into wsServer's Hub —
	// the closure captures the variable, not its zero value, so it
	// resolves correctly once wsServer is assigned below.
	var wsServer *wstransport.Server
	h := host.New(cfg.AgentID, telemetryRoot, func(pluginName string) server.Pusher {
		return wsServer.Pusher(pluginName)
	})
	wsServer = wstransport.NewServer(h)

	ctx := context.Background()
	for _, name := range plugin.Registered() {
		desc, ok, berr := plugin.Build(name)
		if berr != nil {
			log.Error().Err(berr).Str("plugin", name).Msg("plugin factory failed")
			continue
		}
		if !ok {
			continue
		}
		if _, rerr := h.AddPlugin(ctx, desc, cfg.PluginConfig(name), cfg.PluginContext(name)); rerr != nil {
			log.Error().Str("plugin", name).Str("code", string(rerr.Code)).Str("message", rerr.Message).Msg("plugin registration failed")
			continue
		}
		log.Info().Str("plugin", name).Msg("plugin registered")
	}

	var natsAdapter *natstransport.Adapter
	if cfg.NATSURL != "" {
		natsAdapter = natstransport.New(cfg.NATSURL, h)
		if aerr := natsAdapter.Start(ctx); aerr != nil {
			log.Warn().Err(aerr).Msg("nats transport not started")
			natsAdapter = nil
		} else {
			defer natsAdapter.Close()
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	wsRouter := gin.New()
	wsRouter.Use(gin.Recovery())
	wsRouter.GET("/ws", wsServer.Handler())
	wsServerHTTP := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           wsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http transport listening")
		if serr := httpServer.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			log.Fatal().Err(serr).Msg("http server failed")
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.WSAddr).Msg("websocket transport listening")
		if serr := wsServerHTTP.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			log.Fatal().Err(serr).Msg("websocket server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("http server shutdown error")
	}
	if serr := wsServerHTTP.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("websocket server shutdown error")
	}
	for _, name := range plugin.Registered() {
		h.RemovePlugin(shutdownCtx, name)
	}
	h.StopScheduler()
	telemetryRoot.FlushConsumers(int(time.Until(deadline(shutdownCtx)).Milliseconds()))

	log.Info().Msg("shutdown complete")
	return nil
}

// wireConsumers attaches the Redis and NATS telemetry sinks named in
// SPEC_FULL.md's domain stack when their config fields are set, and
// always attaches the OpenTelemetry bridge sink. The returned func
// releases every underlying connection.
func wireConsumers(root *telemetry.Client, cfg config.Config) func() {
	var closers []func()

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		unregister := root.RegisterConsumer(rediscons.New(client, "pluginrt:telemetry"))
		closers = append(closers, unregister, func() { _ = client.Close() })
	}

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Telemetry().Warn().Err(err).Msg("nats telemetry consumer not started")
		} else {
			unregister := root.RegisterConsumer(natscons.New(conn, "pluginrt.telemetry"))
			closers = append(closers, unregister, conn.Close)
		}
	}

	unregisterOtel := root.RegisterConsumer(otelbridge.New(otel.Tracer("pluginrt")))
	closers = append(closers, unregisterOtel)

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func newDepgraphCmd() *cobra.Command {
	var exclude []string
	var skipTypeOnly bool
	cmd := &cobra.Command{
		Use:   "depgraph [entry files...]",
		Short: "Resolve the local import graph reachable from one or more entry files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, rerr := depgraph.Resolve(args, depgraph.Options{
				Exclude:                  exclude,
				SkipTypeOnlyDependencies: skipTypeOnly,
			})
			if rerr != nil {
				return fmt.Errorf("%s", rerr.Message)
			}
			fmt.Println(strings.Join(files, "\n"))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "absolute paths to exclude from the walk")
	cmd.Flags().BoolVar(&skipTypeOnly, "skip-type-only", false, "skip import specifiers that are entirely type-only")
	return cmd
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func deadline(ctx context.Context) time.Time {
	d, ok := ctx.Deadline()
	if !ok {
		return time.Now().Add(5 * time.Second)
	}
	return d
}
