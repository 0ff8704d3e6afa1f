package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"relaygate/backend"
	"relaygate/cache"
	"relaygate/config"
	"relaygate/messaging"
	"relaygate/protocol"
	"relaygate/store"
	"relaygate/telemetry"
	"relaygate/transport"
)

var Version = "dev"

// Default ports per domain when backend.port is unset.
var defaultPorts = map[string]int{
	protocol.DomainUsers:    3001,
	protocol.DomainProducts: 3002,
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "relayd.yaml", "path to config file")
	domain := flag.String("domain", "", "resource domain to serve (users or products)")
	flag.Parse()

	if *showVersion {
		fmt.Println("relayd", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *domain != "" {
		cfg.Backend.Domain = *domain
	}
	if _, ok := defaultPorts[cfg.Backend.Domain]; !ok {
		log.Fatalf("unknown domain %q (want users or products)", cfg.Backend.Domain)
	}
	if cfg.Backend.Port == 0 {
		cfg.Backend.Port = defaultPorts[cfg.Backend.Domain]
	}
	self := protocol.Address{Role: protocol.RoleBackend, Node: cfg.Backend.Domain}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, "relayd-"+cfg.Backend.Domain)
	if err != nil {
		log.Printf("relayd: tracing disabled (%v)", err)
	}
	defer shutdownTracing(context.Background())

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("relayd: database open (%s)", cfg.Database.Driver)

	// Redis
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	rc, err := cache.Connect(pingCtx, cfg.Redis)
	cancel()
	switch {
	case err != nil:
		log.Printf("relayd: redis not available (%v), running without cache", err)
	case rc != nil:
		log.Printf("relayd: redis connected (%s)", cfg.Redis.Address)
	}
	defer rc.Close()

	router, err := backend.New(cfg.Backend.Domain, db, rc)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}

	// Broker server
	if cfg.Messaging.Enabled {
		msgClient := messaging.NewClient(cfg.Messaging)
		if err := msgClient.Connect(); err != nil {
			log.Printf("relayd: messaging connect failed (%v)", err)
		} else {
			defer msgClient.Close()
			topic := cfg.Messaging.CommandTopic(cfg.Backend.Domain)
			if err := transport.NewBrokerServer(msgClient, topic, router, self).Start(); err != nil {
				log.Printf("relayd: broker server: %v", err)
			}
		}
	}

	// gRPC server
	addr := net.JoinHostPort(cfg.Backend.Host, fmt.Sprint(cfg.Backend.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}
	srv := transport.NewGRPCServer(router, self, grpc.StatsHandler(otelgrpc.NewServerHandler()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("relayd: shutting down...")
		srv.Stop()
		return nil
	})

	log.Printf("relayd: %s ready", cfg.Backend.Domain)
	if err := g.Wait(); err != nil {
		log.Printf("relayd: %v", err)
		stop()
		os.Exit(1)
	}
	log.Printf("relayd: stopped")
}
