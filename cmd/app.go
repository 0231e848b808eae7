package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/goatnetwork/goat-escrow/internal/antiabuse"
	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/escrow"
	"github.com/goatnetwork/goat-escrow/internal/http"
	"github.com/goatnetwork/goat-escrow/internal/metrics"
	"github.com/goatnetwork/goat-escrow/internal/p2p"
	"github.com/goatnetwork/goat-escrow/internal/rpc"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/goatnetwork/goat-escrow/internal/token"
	"github.com/goatnetwork/goat-escrow/internal/types"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	DatabaseManager *db.DatabaseManager
	State           *state.State
	Ledger          *token.Ledger
	Limiter         *antiabuse.Limiter
	Engine          *escrow.Engine
	HTTPServer      *http.HTTPServer
	HealthServer    *rpc.HealthServer
	LibP2PService   *p2p.LibP2PService
}

func NewApplication() *Application {
	config.InitConfig()

	dbm := db.NewDatabaseManager()
	state := state.InitializeState(dbm)
	ledger := token.NewLedger(dbm)
	limiter := antiabuse.NewLimiter(dbm)
	if err := limiter.SeedWhitelist(config.AppConfig.RateLimitWhitelist); err != nil {
		log.Fatalf("Failed to seed rate limit whitelist: %v", err)
	}
	monitor := metrics.NewMonitor(dbm)
	engine := escrow.NewEngine(dbm, state, ledger, limiter, monitor)

	app := &Application{
		DatabaseManager: dbm,
		State:           state,
		Ledger:          ledger,
		Limiter:         limiter,
		Engine:          engine,
		HTTPServer:      http.NewHTTPServer(engine, ledger, monitor),
		HealthServer:    rpc.NewHealthServer(state),
	}
	if config.AppConfig.EnableP2P {
		app.LibP2PService = p2p.NewLibP2PService(state)
	}
	return app
}

// bootstrap initializes the instance from the environment on first start.
func (app *Application) bootstrap() {
	admin, tok := config.AppConfig.EscrowAdmin, config.AppConfig.EscrowToken
	if admin == "" || tok == "" {
		return
	}
	if _, initialized := app.State.GetInstance(); initialized {
		return
	}
	ctx := auth.WithSigners(context.Background(), admin)
	if err := app.Engine.Initialize(ctx, admin, tok); err != nil && !errors.Is(err, types.ErrAlreadyInitialized) {
		log.Fatalf("Failed to initialize escrow: %v", err)
	}
	log.Infof("Escrow initialized from environment, admin %s, token %s", admin, tok)
}

func (app *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	app.bootstrap()

	var wg sync.WaitGroup

	if app.LibP2PService != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.LibP2PService.Start(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.HTTPServer.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.HealthServer.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Limiter.Start(ctx)
	}()

	<-stop
	log.Info("Receiving exit signal...")

	cancel()

	wg.Wait()
	app.DatabaseManager.Close()
	log.Info("Server stopped")
}

func main() {
	app := NewApplication()
	app.Run()
}
