// Command agent-sre runs the AI-augmented SRE control plane: it ingests
// Prometheus alert CloudEvents, selects and (optionally, under approval)
// executes a remediation lambda function, and persists the outcome to the
// multi-tier Domain Memory Subsystem.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/agent-sre/internal/config"
	"github.com/jordigilh/agent-sre/pkg/approval"
	"github.com/jordigilh/agent-sre/pkg/ingress"
	"github.com/jordigilh/agent-sre/pkg/lambda"
	"github.com/jordigilh/agent-sre/pkg/llm"
	"github.com/jordigilh/agent-sre/pkg/masking"
	"github.com/jordigilh/agent-sre/pkg/memory/domain"
	"github.com/jordigilh/agent-sre/pkg/memory/manager"
	"github.com/jordigilh/agent-sre/pkg/memory/store"
	"github.com/jordigilh/agent-sre/pkg/observability"
	"github.com/jordigilh/agent-sre/pkg/retrieval"
	"github.com/jordigilh/agent-sre/pkg/runbook"
	"github.com/jordigilh/agent-sre/pkg/selector"
	"github.com/jordigilh/agent-sre/pkg/workflow"
)

func main() {
	// Load a local .env file, if any, before reading the environment proper —
	// matches the teacher's cmd/tarsy/main.go, which treats a missing .env as
	// a warning rather than a fatal error.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded, continuing with existing environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	observability.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fastStore, durableStore := buildStores(cfg)
	memMgr := manager.New(fastStore, durableStore)
	if err := memMgr.Connect(ctx); err != nil {
		log.Fatalf("failed to connect memory stores: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := memMgr.Disconnect(shutdownCtx); err != nil {
			slog.Error("error disconnecting memory stores", "error", err)
		}
	}()

	llmClient := buildLLMClient(cfg)
	rag := buildRAG(cfg)

	sel := selector.New(nil /* TRM_MODEL_PATH: no model artifact ships in this build */, rag, llmClient)
	sel.Runbook = runbook.NewService(runbook.Config{
		AllowedHosts: cfg.Runbook.AllowedHosts,
		CacheTTL:     cfg.Runbook.CacheTTL,
		GitHubToken:  cfg.Runbook.GitHubToken,
	}, nil)

	approvalMgr := approval.New(buildApprovalProviders(cfg)...)
	approvalMgr.StartSweep(ctx, cfg.Approval.SweepInterval)

	masker := masking.New(nil)

	invoker := lambda.NewInvoker(nil)
	invoker.SetMasker(masker)

	checkpoints := workflow.NewVolatileCheckpoints()
	engine := workflow.New(sel, approvalMgr, invoker, checkpoints)
	engine.FunctionNamespace = cfg.FunctionNamespace
	engine.DomainFactory = domain.New(fastStore, nil)
	// No chains are registered by default; every workflow runs only the
	// built-in single-stage remediation until an operator configures one
	// (e.g. engine.Chains = workflow.NewChainRegistry(...)).

	server := ingress.NewServer(engine, approvalMgr, fastStore)
	server.SetDefaultOperationMode(cfg.Workflow.OperationMode)
	server.SetMaxRetries(cfg.Workflow.MaxRetries)
	server.SetMasker(masker)
	server.SetCatchupProvider(checkpoints)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("agent-sre listening", "addr", cfg.Server.Addr, "operation_mode", cfg.Workflow.OperationMode)
		if err := server.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		log.Fatalf("ingress server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down ingress server", "error", err)
	}
}

// buildStores constructs the fast (Redis) and durable (Postgres) memory
// tiers named by MEMORY_FAST_URL/MEMORY_DURABLE_URL, falling back to the
// in-process Volatile store for either tier left unconfigured — the same
// degrade-rather-than-fail posture pkg/runbook and pkg/selector take for
// their own optional collaborators.
func buildStores(cfg *config.Config) (fast, durable store.Store) {
	fast = store.NewVolatile()
	if cfg.FastMemoryEnabled() {
		opts, err := redis.ParseURL(cfg.Memory.FastURL)
		if err != nil {
			log.Fatalf("invalid MEMORY_FAST_URL: %v", err)
		}
		fast = store.NewFastKV(redis.NewClient(opts), cfg.Memory.FastPrefix)
	}

	durable = store.NewVolatile()
	if cfg.DurableMemoryEnabled() {
		pool, err := pgxpool.New(context.Background(), cfg.Memory.DurableURL)
		if err != nil {
			log.Fatalf("invalid MEMORY_DURABLE_URL: %v", err)
		}
		durable = store.NewSQLStore(pool, cfg.Memory.DurableURL)
	}
	return fast, durable
}

// buildLLMClient dials the configured inference sidecar, or falls back to
// an empty llm.FakeClient so the binary still starts when no sidecar is
// configured. That client answers every Generate with an error, so Phase 3
// fails and only alerts with a static lambda_function annotation select a
// function.
func buildLLMClient(cfg *config.Config) llm.Client {
	if !cfg.LLMSidecarEnabled() {
		slog.Warn("LLM_GRPC_ADDR unset, selector Phase 3 will run against a fake client")
		return &llm.FakeClient{}
	}
	client, err := llm.NewGRPCClient(cfg.LLMGRPCAddr)
	if err != nil {
		log.Fatalf("failed to dial LLM sidecar at %s: %v", cfg.LLMGRPCAddr, err)
	}
	return client
}

// buildRAG loads the seed Example DB and wraps it with an in-process vector
// store, per spec.md §6.4's "Example DB file" contract.
func buildRAG(cfg *config.Config) *retrieval.RAG {
	examples, err := retrieval.NewExampleDB(cfg.ExampleDBPath)
	if err != nil {
		log.Fatalf("failed to load example db %s: %v", cfg.ExampleDBPath, err)
	}
	vectors := retrieval.NewVectorStore(nil)
	return retrieval.NewRAG(examples, vectors)
}

// buildApprovalProviders constructs the chat and HTTP webhook approval
// providers named by the environment. Either or both may be absent; an
// absent provider named in a workflow's ApprovalConfig.Providers list is
// handled fail-closed by approval.Manager itself.
func buildApprovalProviders(cfg *config.Config) []approval.Provider {
	var providers []approval.Provider

	if cfg.ChatProviderEnabled() {
		if p := approval.NewChatProvider(approval.ChatProviderConfig{
			Token:   cfg.Approval.Chat.Token,
			Channel: cfg.Approval.Chat.Channel,
		}); p != nil {
			providers = append(providers, p)
		}
	}

	if cfg.HTTPProviderEnabled() {
		providers = append(providers, approval.NewHTTPProvider(approval.HTTPProviderConfig{
			Name:    cfg.Approval.HTTP.Name,
			URL:     cfg.Approval.HTTP.URL,
			Timeout: cfg.Approval.HTTP.Timeout,
		}))
	}

	return providers
}
