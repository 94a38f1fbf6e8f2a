package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fossclear/fossclear/internal/api"
	"github.com/fossclear/fossclear/internal/audit"
	"github.com/fossclear/fossclear/internal/auth"
	"github.com/fossclear/fossclear/internal/config"
	"github.com/fossclear/fossclear/internal/crypto"
	"github.com/fossclear/fossclear/internal/ledger"
	"github.com/fossclear/fossclear/internal/ledger/pgstore"
	"github.com/fossclear/fossclear/internal/ledger/sqlstore"
	"github.com/fossclear/fossclear/internal/notify"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

func newServer(cfg config.Config) (*http.Server, error) {
	store, err := openStore(cfg.DB)
	if err != nil {
		return nil, err
	}

	service := api.NewClearingService(store)

	if cfg.SigningKey.SeedPath != "" {
		seed, err := crypto.LoadOrGenerateSeed(cfg.SigningKey.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("signing key: %w", err)
		}
		privateKey, publicKey, err := crypto.KeyPairFromSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("signing key: %w", err)
		}
		keyID := cfg.SigningKey.KeyID
		if keyID == "" {
			keyID = "fossclear-local"
		}
		service.Signer = &audit.KeySigner{ID: keyID, PrivateKey: privateKey}
		service.PublicKey = publicKey
	}

	authenticator := auth.NewAuthenticatorFromEnv()
	if cfg.Auth.APIToken != "" {
		authenticator.APIToken = cfg.Auth.APIToken
	}

	if cfg.Webhook.Enabled {
		service.NotifyDecisions = true
		go pumpOutbox(store, cfg.Webhook.URL)
	}

	h := &api.Handler{
		Auth:    authenticator,
		Service: service,
	}
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}

func openStore(db config.DBConfig) (ledger.Store, error) {
	switch db.Driver {
	case "":
		return ledger.NewInMemoryStore(), nil
	case "sqlite":
		s, err := sqlstore.OpenSQLite(db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := ledger.Migrate(s.DB(), ledger.DBSQLite); err != nil {
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := pgstore.Open(db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ledger.Migrate(s.DB(), ledger.DBPostgres); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", db.Driver)
	}
}

func pumpOutbox(store ledger.Store, url string) {
	poster := notify.NewWebhookPoster()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := notify.ProcessOutboxDue(context.Background(), store, poster, url, time.Now().UTC(), 50); err != nil {
			log.Printf("outbox: %v", err)
		}
	}
}

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(cfg config.Config) (*http.Server, error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("fossclear-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to fossclear config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("FOSSCLEAR_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cfg.ListenAddr = firstNonEmpty(getenv("FOSSCLEAR_LISTEN_ADDR"), cfg.ListenAddr, ":8080")
	cfg.DB.Driver = firstNonEmpty(getenv("FOSSCLEAR_DB_DRIVER"), cfg.DB.Driver)
	cfg.DB.DSN = firstNonEmpty(getenv("FOSSCLEAR_DB_DSN"), cfg.DB.DSN)
	cfg.SigningKey.SeedPath = firstNonEmpty(getenv("FOSSCLEAR_SIGNING_SEED_PATH"), cfg.SigningKey.SeedPath)
	cfg.Auth.APIToken = firstNonEmpty(getenv("FOSSCLEAR_API_TOKEN"), cfg.Auth.APIToken)

	server, err := factory(cfg)
	if err != nil {
		return err
	}

	log.Printf("fossclear-gateway listening on %s", cfg.ListenAddr)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
