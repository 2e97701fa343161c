package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	"github.com/tbv-labs/vault-depositor/internal/btc"
	"github.com/tbv-labs/vault-depositor/internal/config"
	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/deposit"
	"github.com/tbv-labs/vault-depositor/internal/http"
	"github.com/tbv-labs/vault-depositor/internal/layer2"
	"github.com/tbv-labs/vault-depositor/internal/plan"
	"github.com/tbv-labs/vault-depositor/internal/provider"
	"github.com/tbv-labs/vault-depositor/internal/signer"
	"github.com/tbv-labs/vault-depositor/internal/state"
)

type Application struct {
	DatabaseManager *db.DatabaseManager
	State           *state.State
	Orchestrator    *deposit.Orchestrator
	VaultWatcher    *layer2.VaultWatcher
	HTTPServer      *http.HTTPServerImpl
}

func NewApplication() *Application {
	config.InitConfig()
	// create bitcoin client using node rpc connection
	connConfig := &rpcclient.ConnConfig{
		Host:         config.AppConfig.BTCRPC,
		User:         config.AppConfig.BTCRPC_USER,
		Pass:         config.AppConfig.BTCRPC_PASS,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	btcClient, err := rpcclient.New(connConfig, nil)
	if err != nil {
		log.Fatalf("Failed to start bitcoin client: %v", err)
	}

	dbm := db.NewDatabaseManager(config.AppConfig.DbDir)
	store := db.NewPeginStore(dbm)
	st := state.InitializeState(store)

	l2Client, err := layer2.NewClient(config.AppConfig.L2RPC, config.AppConfig.VaultRegistry)
	if err != nil {
		log.Fatalf("Failed to start layer2 client: %v", err)
	}
	ethKey, err := crypto.HexToECDSA(config.AppConfig.DepositorPriKey)
	if err != nil {
		log.Fatalf("Failed to parse depositor private key: %v", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(ethKey, config.AppConfig.L2ChainId)
	if err != nil {
		log.Fatalf("Failed to build transactor: %v", err)
	}
	chainAdapter := layer2.NewDepositAdapter(l2Client, auth)

	wallet, err := signer.NewLocalSigner(config.AppConfig.BTCPriKey)
	if err != nil {
		log.Fatalf("Failed to load bitcoin signing key: %v", err)
	}

	net := config.AppConfig.ChainParams()
	providerClient := provider.NewClient(
		config.AppConfig.ProviderURL,
		config.AppConfig.ProviderPollInterval,
		config.AppConfig.ProviderPollTimeout,
	)

	orchestrator := deposit.NewOrchestrator(
		plan.NewPlanner(btc.NewSplitTxBuilder(net)),
		btc.NewPeginTxBuilder(net),
		chainAdapter,
		providerClient,
		btc.NewRPCBroadcaster(btcClient),
		wallet,
		providerClient,
		st,
		state.NewParamsCache(config.AppConfig.ParamsCacheTTL),
		deposit.Config{
			RegistrationTimeout: config.AppConfig.RegistrationTimeout,
			VerifyTimeout:       config.AppConfig.VerifyTimeout,
			StatusPollInterval:  config.AppConfig.StatusPollInterval,
		},
	)

	vaultWatcher := layer2.NewVaultWatcher(l2Client, st, config.AppConfig.DepositorEthAddress, config.AppConfig.StatusPollInterval)
	httpServer := http.NewHTTPServer(
		st,
		orchestrator,
		btc.NewRPCUtxoLister(btcClient, 1),
		btc.NewMemPoolFeeFetcher(btcClient, net),
	)

	return &Application{
		DatabaseManager: dbm,
		State:           st,
		Orchestrator:    orchestrator,
		VaultWatcher:    vaultWatcher,
		HTTPServer:      httpServer,
	}
}

func (app *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.VaultWatcher.Start(ctx)
	}()

	go app.HTTPServer.StartHTTPServer()

	<-stop
	log.Info("Receiving exit signal...")

	cancel()

	wg.Wait()
	log.Info("Server stopped")
}

func main() {
	app := NewApplication()
	app.Run()
}
