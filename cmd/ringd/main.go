// Command ringd is the node daemon entry point: it loads configuration,
// wires every internal/* collaborator together by hand (no DI
// framework, mirroring api-gateway/cmd/server/main.go's construction
// order), then
// serves the admin/health HTTP surface and the gRPC transport until a
// shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"github.com/ringdb/ringdb/internal/admin"
	"github.com/ringdb/ringdb/internal/config"
	coordread "github.com/ringdb/ringdb/internal/coordinator/read"
	coordwrite "github.com/ringdb/ringdb/internal/coordinator/write"
	"github.com/ringdb/ringdb/internal/datanode"
	"github.com/ringdb/ringdb/internal/failuredetector"
	"github.com/ringdb/ringdb/internal/gossip"
	"github.com/ringdb/ringdb/internal/hints"
	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/membership"
	"github.com/ringdb/ringdb/internal/metrics"
	"github.com/ringdb/ringdb/internal/partition"
	"github.com/ringdb/ringdb/internal/replication"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/ringerr"
	"github.com/ringdb/ringdb/internal/routing"
	"github.com/ringdb/ringdb/internal/server"
	"github.com/ringdb/ringdb/internal/snitch"
	"github.com/ringdb/ringdb/internal/stats"
	"github.com/ringdb/ringdb/internal/transport"
)

func main() {
	configPath := flag.String("config", "/etc/ringdb/ringd.yaml", "path to config file")
	flag.Parse()

	logger := initLogger(os.Getenv("RINGDB_LOG_LEVEL"), os.Getenv("RINGDB_LOG_FORMAT"))
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Error("ringd exiting", zap.Error(err))
		if ringerr.IsCode(err, ringerr.CodeFatal) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func run(configPath string, logger *zap.Logger) error {
	logger.Info("starting ringd")

	cfg, err := config.Load(configPath)
	if err != nil {
		return ringerr.Fatal(err, "load configuration")
	}
	logger.Info("configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("port", cfg.Server.Port),
		zap.String("partitioner", cfg.Ring.Partitioner),
		zap.String("replication_strategy", cfg.Replication.Strategy),
	)

	self := ring.Endpoint(fmt.Sprintf("%s:%d", cfg.Server.NodeID, cfg.Server.Port))

	partitioner, err := buildPartitioner(cfg.Ring.Partitioner)
	if err != nil {
		return ringerr.Fatal(err, "build partitioner")
	}

	tm := ring.New()
	initialToken := partition.Token(cfg.Ring.InitialToken)
	if initialToken == "" {
		initialToken = partitioner.GetRandomToken()
	}
	tm.UpdateNormalToken(initialToken, self)

	sn := snitch.NewStatic(map[ring.Endpoint]string{self: "rack1"}, map[ring.Endpoint]string{self: "dc1"})

	rfs := make(map[ring.Table]int, len(cfg.Replication.Factors))
	for table, rf := range cfg.Replication.Factors {
		rfs[ring.Table(table)] = rf
	}

	sharedStrategy := buildStrategy(cfg.Replication.Strategy, tm, sn, rfs)
	strategies := make(map[ring.Table]replication.Strategy, len(rfs))
	for table := range rfs {
		strategies[table] = sharedStrategy
	}

	controller := membership.New(self, tm, strategies, partitioner, logger)

	detector := failuredetector.NewHeartbeat(cfg.Gossip.ProbeTimeout * 4)

	gossiper, err := gossip.New(gossip.Config{
		BindPort:       cfg.Gossip.BindPort,
		SeedNodes:      cfg.Gossip.SeedNodes,
		GossipInterval: cfg.Gossip.GossipInterval,
		ProbeTimeout:   cfg.Gossip.ProbeTimeout,
		ProbeInterval:  cfg.Gossip.ProbeInterval,
	}, self, detector, logger)
	if err != nil {
		return ringerr.Fatal(err, "start gossiper")
	}
	defer gossiper.Shutdown()
	gossiper.SetListener(controller)

	store := localstore.NewMemory()
	hintStore := hints.NewMemory()

	tr := transport.NewGRPCTransport(self, logger)
	tr.SetHandler(datanode.New(store, logger).Handle)

	transportLis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.TransportPort))
	if err != nil {
		return ringerr.Fatal(err, "bind transport listener")
	}
	transportServer := grpc.NewServer()
	transportServer.RegisterService(tr.NewServiceDesc(), tr)
	go func() {
		if err := transportServer.Serve(transportLis); err != nil {
			logger.Error("transport server stopped", zap.Error(err))
		}
	}()
	logger.Info("transport server started", zap.Int("port", cfg.Server.TransportPort))
	defer transportServer.GracefulStop()

	sender := hints.NewTransportSender(tr, cfg.Hints.RPCTimeout)
	replayer := hints.NewReplayer(hintStore, sender, detector, cfg.Hints.RPCTimeout, cfg.Hints.ThrottleBetween, logger)

	router := routing.New(partitioner, strategies[firstTable(rfs)], tm, detector)

	writeCoord := coordwrite.New(router, tr, hintStore, detector, cfg.Consistency.WriteTimeout, logger)
	readCoord := coordread.New(router, tr, sn, self, cfg.Consistency.ReadTimeout, logger)

	sink := stats.New()
	m := metrics.New(cfg.Server.NodeID)
	m.GossipMembersHealthy.Set(float64(len(gossiper.GetLive())))

	flush := func() error { return store.Flush(context.Background()) }
	adminSurface := admin.New(controller, gossiper, sn, sink, flush, logger)

	srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), server.Deps{
		Admin:              adminSurface,
		ReadCoordinator:    readCoord,
		WriteCoordinator:   writeCoord,
		Logger:             logger,
		Ready:              func() bool { return true },
		Live:               func() bool { return true },
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
	})

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port), cfg.Metrics.Path)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()
	logger.Info("admin server started", zap.Int("port", cfg.Server.Port))

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		logger.Info("metrics server started", zap.Int("port", cfg.Metrics.Port))
	}

	for _, ep := range gossiper.GetLive() {
		replayer.NotifyAlive(ep)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("admin server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := tr.Close(); err != nil {
		logger.Error("transport shutdown failed", zap.Error(err))
	}

	logger.Info("ringd shutdown complete")
	return nil
}

func buildPartitioner(name string) (partition.Partitioner, error) {
	switch name {
	case "odkl_domain":
		return partition.NewOdklDomain(), nil
	case "order_preserving", "":
		return partition.NewOrderPreserving(), nil
	default:
		return nil, fmt.Errorf("unknown partitioner %q", name)
	}
}

func buildStrategy(name string, tm *ring.TokenMetadata, sn snitch.Snitch, rfs map[ring.Table]int) replication.Strategy {
	if name == "rack_aware" {
		return replication.NewRackAwareOdklEven(tm, sn, rfs)
	}
	return replication.NewSimple(tm, rfs)
}

func firstTable(rfs map[ring.Table]int) ring.Table {
	for t := range rfs {
		return t
	}
	return ring.Table("")
}

// initLogger mirrors api-gateway/cmd/server/main.go's initLogger:
// production JSON config by default, console if
// RINGDB_LOG_FORMAT=console, level from RINGDB_LOG_LEVEL.
func initLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
