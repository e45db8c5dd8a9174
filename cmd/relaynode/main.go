package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/dispatcher"
	"github.com/GenerationSoftware/ERC5164/executor"
	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/relayer"
	"github.com/GenerationSoftware/ERC5164/store"
	"github.com/GenerationSoftware/ERC5164/transport/bridgesim"
)

// dispatcherLink is the piece of the dispatch surface the node wires at
// startup; both dispatcher variants satisfy it.
type dispatcherLink interface {
	SetExecutor(addr protocol.UnknownAddress) error
}

func main() {
	configPath := flag.String("config", "relaynode.toml", "path to TOML configuration")
	flag.Parse()

	lggr, err := logger.NewWith(func(config *zap.Config) {
		config.Development = true
		config.Encoding = "console"
	})
	if err != nil {
		panic(err)
	}
	lggr = logger.Sugared(lggr)

	if err := runNode(*configPath, lggr); err != nil {
		lggr.Errorw("relay node failed", "error", err)
		os.Exit(1)
	}
}

func runNode(configPath string, lggr logger.Logger) error {
	cfg, err := relayer.LoadConfiguration(configPath)
	if err != nil {
		return err
	}

	dispatcherAddr, err := protocol.NewUnknownAddressFromHex(cfg.DispatcherAddress)
	if err != nil {
		return fmt.Errorf("invalid dispatcher address: %w", err)
	}
	executorAddr, err := protocol.NewUnknownAddressFromHex(cfg.ExecutorAddress)
	if err != nil {
		return fmt.Errorf("invalid executor address: %w", err)
	}

	newStore, err := storeFactory(cfg.RedisURL)
	if err != nil {
		return err
	}

	originChain := protocol.ChainID(cfg.OriginChainID)
	destChain := protocol.ChainID(cfg.DestChainID)
	chain := bridgesim.NewChain()

	var (
		bridge bridgesim.Bridge
		link   dispatcherLink
		auth   executor.SenderAuthenticator
	)
	switch cfg.Transport {
	case relayer.TransportTicket:
		b := bridgesim.NewAliasBridge()
		d, err := dispatcher.NewTicket(lggr, dispatcherAddr, originChain, destChain, newStore("dispatch"), b)
		if err != nil {
			return err
		}
		bridge, link, auth = b, d, executor.AliasAuthenticator{}

	case relayer.TransportMessenger:
		messengerAddr, err := protocol.NewUnknownAddressFromHex(cfg.MessengerAddress)
		if err != nil {
			return fmt.Errorf("invalid messenger address: %w", err)
		}
		b := bridgesim.NewMessengerBridge(messengerAddr)
		d, err := dispatcher.New(lggr, dispatcherAddr, originChain, destChain, newStore("dispatch"), b)
		if err != nil {
			return err
		}
		a, err := executor.NewMessengerAuthenticator(b.Address(), b)
		if err != nil {
			return err
		}
		bridge, link, auth = b, d, a

	case relayer.TransportTunnel:
		relayerAddr, err := protocol.NewUnknownAddressFromHex(cfg.TunnelRelayerAddress)
		if err != nil {
			return fmt.Errorf("invalid tunnel relayer address: %w", err)
		}
		b := bridgesim.NewTunnelBridge(relayerAddr)
		d, err := dispatcher.New(lggr, dispatcherAddr, originChain, destChain, newStore("dispatch"), b)
		if err != nil {
			return err
		}
		a, err := executor.NewTunnelAuthenticator(relayerAddr)
		if err != nil {
			return err
		}
		bridge, link, auth = b, d, a

	default:
		return fmt.Errorf("unknown transport: %s", cfg.Transport)
	}

	exec, err := executor.New(lggr, executorAddr, auth, newStore("execution"), chain)
	if err != nil {
		return err
	}
	if err := link.SetExecutor(executorAddr); err != nil {
		return err
	}
	if err := exec.SetDispatcher(dispatcherAddr); err != nil {
		return err
	}

	monitoring, err := buildMonitoring(cfg.Monitoring)
	if err != nil {
		return err
	}

	coordinator, err := relayer.NewCoordinator(
		relayer.WithLogger(lggr),
		relayer.WithBridge(bridge),
		relayer.WithTarget(exec),
		relayer.WithMonitoring(monitoring),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	g.Add(func() error {
		if err := coordinator.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return coordinator.Stop()
	}, func(error) {
		cancel()
	})

	lggr.Infow("relay node started",
		"transport", cfg.Transport,
		"originChain", cfg.OriginChainID,
		"destChain", cfg.DestChainID,
	)
	err = g.Run()
	var sigErr run.SignalError
	if err != nil && !errors.As(err, &sigErr) {
		return err
	}
	lggr.Infow("relay node stopped")
	return nil
}

func storeFactory(redisURL string) (func(prefix string) store.FlagStore, error) {
	if redisURL == "" {
		return func(string) store.FlagStore { return store.NewMemory() }, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return func(prefix string) store.FlagStore { return store.NewRedis(client, prefix) }, nil
}

func buildMonitoring(cfg relayer.MonitoringConfig) (relayer.Monitoring, error) {
	if !cfg.Enabled || cfg.Type == "noop" {
		return relayer.NoopMonitoring{}, nil
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider())
	return relayer.InitOtelMonitoring()
}
