package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"skillbridge-quiz-service/internal/app"
	"skillbridge-quiz-service/internal/config"
	"skillbridge-quiz-service/internal/domain"
	"skillbridge-quiz-service/internal/infra/gateway"
	"skillbridge-quiz-service/internal/infra/memory"
	pgstore "skillbridge-quiz-service/internal/infra/postgres"
	redisinfra "skillbridge-quiz-service/internal/infra/redis"
	transport "skillbridge-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(sampleAssessments())
	if pool != nil {
		loader = pgstore.NewCatalogLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.CatalogRepository
	if redisClient != nil {
		catalog = redisinfra.NewCatalogCache(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogCache(loader, catalogTTL)
	}

	var attempts app.AttemptRepository
	var certs app.CertificateLedger
	if redisClient != nil {
		attempts = redisinfra.NewAttemptStore(redisClient, redisTTL)
		certs = redisinfra.NewCertLedger(redisClient)
	} else {
		attempts = memory.NewAttemptStore()
		certs = memory.NewCertLedger()
	}

	var completions app.CompletionStore
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bundb := bun.NewDB(sqldb, pgdialect.New())
		defer bundb.Close()
		completions = pgstore.NewCompletionStore(bundb)
	}

	deps := app.Deps{
		Attempts:    attempts,
		Catalog:     catalog,
		Certs:       certs,
		Completions: completions,
	}
	if cfg.Gateway.ChainURL != "" {
		chain := gateway.NewChainClient(cfg.Gateway.ChainURL)
		ipfs := gateway.NewIPFSClient(cfg.Gateway.IPFSUploadURL, cfg.Gateway.IPFSGatewayURL)
		deps.Status = chain
		deps.Rewards = chain
		deps.Chain = chain
		deps.Publisher = ipfs
		deps.Profiles = gateway.NewProfileReader(chain, ipfs)
	} else {
		// Demo mode: no chain gateway configured, accept everything locally.
		log.Printf("no chain gateway configured, running with local stub collaborators")
		stub := newStubGateway()
		deps.Status = stub
		deps.Rewards = stub
		deps.Chain = stub
		deps.Publisher = stub
		deps.Profiles = stub
	}

	service := app.NewAttemptService(deps)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting skillbridge quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// stubGateway is the demo-mode collaborator set: every user is enrolled in
// the sample course, rewards and commits always succeed, artifacts get
// locally generated ids.
type stubGateway struct {
	mu       sync.Mutex
	sequence int
}

func newStubGateway() *stubGateway {
	return &stubGateway{}
}

func (g *stubGateway) CompletionStatus(_ context.Context, _ string) (domain.CompletionStatus, error) {
	return domain.CompletionStatus{EnrolledCourseIDs: []string{"course-1"}}, nil
}

func (g *stubGateway) AwardEntryReward(_ context.Context, userAddress string, correctCount int) error {
	log.Printf("demo reward: %d token(s) for %s", correctCount, userAddress)
	return nil
}

func (g *stubGateway) PublishArtifact(_ context.Context, _ domain.AttemptSummary) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sequence++
	return fmt.Sprintf("demo-cid-%d", g.sequence), nil
}

func (g *stubGateway) CommitCompletion(_ context.Context, userAddress, courseID, artifactID string) error {
	log.Printf("demo commit: %s completed %s with artifact %s", userAddress, courseID, artifactID)
	return nil
}

func (g *stubGateway) Profile(_ context.Context, _ string) (domain.Profile, bool, error) {
	return domain.Profile{}, false, nil
}

// sampleAssessments provides a minimal catalog; swap the loader for the
// Postgres-backed one in production.
func sampleAssessments() map[string]domain.Assessment {
	return map[string]domain.Assessment{
		"entry": {
			ID:               "entry",
			Kind:             domain.KindEntry,
			TimeLimitSeconds: 180,
			Questions: []domain.Question{
				{
					Prompt: "What does NFT stand for?",
					Options: []domain.Option{
						{Key: "a", Text: "New File Type"},
						{Key: "b", Text: "Non-Fungible Token"},
						{Key: "c", Text: "Network File Transfer"},
					},
					CorrectKey: "b",
				},
				{
					Prompt: "Which network hosts smart contracts?",
					Options: []domain.Option{
						{Key: "a", Text: "Ethereum"},
						{Key: "b", Text: "FTP"},
						{Key: "c", Text: "SMTP"},
					},
					CorrectKey: "a",
				},
			},
		},
		"course:course-1": {
			ID:                "course:course-1",
			Kind:              domain.KindCourse,
			CourseID:          "course-1",
			CourseTitle:       "Intro to Web3",
			TimeLimitSeconds:  300,
			PassingPercentage: 70,
			Questions: []domain.Question{
				{
					Prompt: "What is a wallet address?",
					Options: []domain.Option{
						{Key: "a", Text: "A public account identifier"},
						{Key: "b", Text: "A private key"},
						{Key: "c", Text: "A block hash"},
					},
					CorrectKey: "a",
				},
				{
					Prompt: "What is gas?",
					Options: []domain.Option{
						{Key: "a", Text: "A storage unit"},
						{Key: "b", Text: "The fee for executing transactions"},
						{Key: "c", Text: "A consensus algorithm"},
					},
					CorrectKey: "b",
				},
			},
		},
	}
}
