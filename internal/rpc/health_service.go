package rpc

import (
	"context"
	"net"

	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	log "github.com/sirupsen/logrus"
)

// EscrowService is the health service name load balancers probe. It reports
// NOT_SERVING while the contract is paused or not yet initialized.
const EscrowService = "goat.escrow.v1.Escrow"

type HealthServer struct {
	state  *state.State
	health *health.Server
	events chan interface{}
	logger *log.Entry
}

func NewHealthServer(st *state.State) *HealthServer {
	hs := &HealthServer{
		state:  st,
		health: health.NewServer(),
		events: make(chan interface{}, 16),
		logger: log.WithFields(log.Fields{"module": "rpc"}),
	}
	st.EventBus.Subscribe(state.EscrowInitialized, hs.events)
	st.EventBus.Subscribe(state.ContractPaused, hs.events)
	st.EventBus.Subscribe(state.ContractUnpaused, hs.events)
	hs.refresh()
	return hs
}

func (s *HealthServer) Start(ctx context.Context) {
	addr := ":" + config.AppConfig.RPCPort
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Fatalf("failed to listen: %v", err)
	}

	server := grpc.NewServer()
	s.Register(server)
	reflection.Register(server)

	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		server.GracefulStop()
	}()

	s.logger.Infof("gRPC server is running on port %s", config.AppConfig.RPCPort)
	if err := server.Serve(lis); err != nil {
		s.logger.Fatalf("failed to serve: %v", err)
	}
	s.logger.Info("gRPC server stopped")
}

func (s *HealthServer) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, s.health)
}

func (s *HealthServer) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if e, ok := ev.(state.Event); ok {
				s.logger.Debugf("Health refresh on %s", e.Name)
			}
			s.refresh()
		}
	}
}

func (s *HealthServer) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if _, initialized := s.state.GetInstance(); !initialized || s.state.IsPaused() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(EscrowService, status)
	// the overall server stays up so queries keep working while paused
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}
