package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"duka.app/internal/auth"
	"duka.app/internal/config"
	"duka.app/internal/httpapi"
	"duka.app/internal/obs"
	"duka.app/internal/store/memory"
	"duka.app/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		directory auth.Directory
		ready     httpapi.ReadyProbe
		closeDB   func() error
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		directory, ready, closeDB = store, httpapi.ReadyProbe{DB: store.DB()}, store.Close
	} else {
		obs.Warn("memory_store_in_use", map[string]any{"reason": "DUKA_PG_DSN is empty"})
		directory = memory.New()
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		log.Fatalf("token verifier: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Directory:      directory,
		Verifier:       verifier,
		Ready:          ready,
		Version:        version,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	evalOpts := auth.WithEvaluatorOptions(
		auth.WithMissingPolicyMode(cfg.MissingPolicy),
		auth.WithRequiredPolicyPaths(cfg.RequiredPolicyPaths...),
		auth.WithRoleMismatchStatus(cfg.RoleMismatchStatus),
	)
	resolver := auth.StoreResolver{Accounts: directory}
	gate, err := auth.NewGate(verifier, resolver, directory,
		auth.WithExemptions(api.Router()),
		auth.WithProtectedPrefix(cfg.ProtectedPrefix),
		evalOpts,
	)
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(gate),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var (
		grpcSrv   *grpc.Server
		healthSrv *health.Server
	)
	if cfg.GRPCAddr != "" {
		rpcGate, err := auth.NewGate(verifier, resolver, directory,
			auth.WithProtectedPrefix("/"),
			auth.WithExemptions(httpapi.ServiceExemptions(healthpb.Health_ServiceDesc.ServiceName)),
			evalOpts,
		)
		if err != nil {
			log.Fatalf("grpc gate: %v", err)
		}
		grpcSrv = grpc.NewServer(
			grpc.ChainUnaryInterceptor(httpapi.UnaryGateInterceptor(rpcGate)),
			grpc.ChainStreamInterceptor(httpapi.StreamGateInterceptor(rpcGate)),
		)
		healthSrv = health.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	obs.Info("server_starting", map[string]any{
		"version":        version,
		"http_addr":      srv.Addr,
		"grpc_addr":      cfg.GRPCAddr,
		"firebase":       cfg.UseFirebase(),
		"missing_policy": cfg.MissingPolicy.String(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	obs.Info("server_stopping", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthSrv != nil {
		healthSrv.Shutdown()
	}
	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if closeDB != nil {
		_ = closeDB()
	}
	obs.Info("server_stopped", nil)
}

func newVerifier(cfg config.Config) (auth.Verifier, error) {
	if cfg.UseFirebase() {
		return auth.NewFirebaseVerifier(cfg.FirebaseProjectID,
			auth.WithCertsURL(cfg.FirebaseCertsURL),
			auth.WithHTTPClient(&http.Client{Timeout: cfg.FirebaseCertsTimeout}),
		)
	}
	obs.Warn("hmac_verifier_in_use", map[string]any{"reason": "DUKA_FIREBASE_PROJECT_ID is empty"})
	var opts []auth.HMACOption
	if cfg.AuthIssuer != "" {
		opts = append(opts, auth.WithHMACIssuer(cfg.AuthIssuer))
	}
	return auth.NewHMACVerifier(cfg.AuthSecret, opts...)
}
