package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"relaygate/config"
	"relaygate/gateway"
	"relaygate/messaging"
	"relaygate/metrics"
	"relaygate/protocol"
	"relaygate/telemetry"
	"relaygate/transport"
	"relaygate/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "relaygate.yaml", "path to config file")
	hashToken := flag.String("hash-token", "", "print the bcrypt hash of a bearer token for web.token_hash and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("relaygate", Version)
		return
	}
	if *hashToken != "" {
		hash, err := www.HashToken(*hashToken)
		if err != nil {
			log.Fatalf("hash token: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, "relaygate")
	if err != nil {
		log.Printf("relaygate: tracing disabled (%v)", err)
	}
	defer shutdownTracing(context.Background())

	self := protocol.Address{Role: protocol.RoleGateway, Node: "gw-" + uuid.NewString()[:8]}
	m := metrics.New()

	// Messaging client, only needed by broker transports
	var msgClient *messaging.Client
	if cfg.Messaging.Enabled || usesBroker(cfg) {
		msgClient = messaging.NewClient(cfg.Messaging)
		if err := msgClient.Connect(); err != nil {
			log.Fatalf("messaging connect (%s): %v", cfg.Messaging.Backend, err)
		}
		log.Printf("relaygate: messaging connected (%s)", cfg.Messaging.Backend)
		defer msgClient.Close()
	}

	// Backends
	users, err := connectBackend(protocol.DomainUsers, cfg.Services.Users, self, cfg.Messaging, msgClient)
	if err != nil {
		log.Fatalf("users backend: %v", err)
	}
	defer users.close()
	products, err := connectBackend(protocol.DomainProducts, cfg.Services.Products, self, cfg.Messaging, msgClient)
	if err != nil {
		log.Fatalf("products backend: %v", err)
	}
	defer products.close()

	// Web server
	handler := www.NewRouter(www.Options{
		Users:    gateway.NewUserService(transport.Instrument(users.t, m)),
		Products: gateway.NewProductService(transport.Instrument(products.t, m)),
		Backends: map[string]www.Pinger{
			protocol.DomainUsers:    users.ping,
			protocol.DomainProducts: products.ping,
		},
		Metrics: m,
		Web:     cfg.Web,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Web.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("relaygate: web server listening on %s (instance %s)", addr, self.Node)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("relaygate: shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Printf("relaygate: ready")
	if err := g.Wait(); err != nil {
		log.Printf("relaygate: %v", err)
		stop()
		os.Exit(1)
	}
	log.Printf("relaygate: stopped")
}

func usesBroker(cfg *config.Config) bool {
	return cfg.Services.Users.Transport == config.TransportBroker ||
		cfg.Services.Products.Transport == config.TransportBroker
}
