package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"votechain/api"
	"votechain/config"
	"votechain/contracts"
	"votechain/logger"
	"votechain/models"
	"votechain/registry"
	"votechain/service"
	"votechain/wallet"
)

func main() {
	cfg, err := config.InitConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	log := logger.GetLogger()
	log.Infow("configuration loaded", "config", cfg.String())

	registryAddr, err := cfg.Registry()
	if err != nil {
		log.Warnw("registry address not configured, contract calls will fail until it is set", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	provider, factory, err := initializeBackend(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatalw("failed to initialize backend", "error", err)
	}

	session := wallet.NewSession(provider)
	defer session.Close()

	votingService := service.NewVotingService(session, factory, registryAddr)
	server := api.NewServer(votingService, provider)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	serverChan := make(chan error, 1)
	go func() {
		serverChan <- server.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-serverChan:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server error", "error", err)
		}
	case sig := <-sigChan:
		log.Infow("received signal, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during shutdown", "error", err)
		}
		votingService.Disconnect()
		log.Infow("server shutdown completed")
	}
}

// initializeBackend picks the in-memory contracts when a dev seed is set and a
// JSON-RPC node otherwise. Without wallet keys the provider is nil and every
// connect attempt reports the wallet as unavailable.
func initializeBackend(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (wallet.Provider, contracts.Factory, error) {
	if cfg.DevSeed != "" {
		registryAddr, _ := cfg.Registry()
		mock := registry.NewMockRegistry(registryAddr)
		if err := mock.LoadTestData(cfg.DevSeed); err != nil {
			return nil, nil, err
		}
		log.Infow("using in-memory contracts", "seed", cfg.DevSeed)

		kp, err := wallet.NewKeyProvider(nil, cfg.Chain(), cfg.WalletKeys)
		if err != nil {
			if errors.Is(err, models.ErrWalletUnavailable) {
				log.Warnw("no wallet keys configured")
				return nil, mock.Contracts, nil
			}
			return nil, nil, err
		}
		return kp, mock.Contracts, nil
	}

	kp, err := wallet.Dial(ctx, cfg.RPCURL, cfg.Chain(), cfg.WalletKeys)
	if err != nil {
		if errors.Is(err, models.ErrWalletUnavailable) {
			log.Warnw("no wallet keys configured")
			return nil, contracts.NewContracts, nil
		}
		return nil, nil, err
	}
	log.Infow("connected to node", "rpc", cfg.RPCURL, "chain", cfg.ChainID)
	return kp, contracts.NewContracts, nil
}
