// Command agentrun-worker hosts the Agent Execution Workflow (C6) and
// Trigger Execution Workflow (C7) on a durable Temporal backend: it wires
// the C1 external collaborators (LLM provider, MCP tool caller, trigger
// store), registers every activity and workflow named in spec.md §6, and
// blocks serving them until interrupted.
//
// Grounded on the teacher's worker bootstraps (registry/cmd/registry/main.go
// for the flag/env + mongo/redis dial conventions; goa-ai's own engine
// construction for Temporal client/worker options).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/goadesign/agentrun/catalogue"
	"github.com/goadesign/agentrun/engine"
	temporalengine "github.com/goadesign/agentrun/engine/temporal"
	"github.com/goadesign/agentrun/hooks"
	"github.com/goadesign/agentrun/mcptool"
	"github.com/goadesign/agentrun/memory"
	"github.com/goadesign/agentrun/model"
	"github.com/goadesign/agentrun/model/anthropic"
	"github.com/goadesign/agentrun/model/openai"
	"github.com/goadesign/agentrun/run"
	"github.com/goadesign/agentrun/runtime"
	"github.com/goadesign/agentrun/secrets"
	"github.com/goadesign/agentrun/telemetry"
	"github.com/goadesign/agentrun/trigger"
	triggermongo "github.com/goadesign/agentrun/trigger/store/mongo"
	"github.com/goadesign/agentrun/triggerwf"
)

const (
	agentTaskQueue      = "agent-tasks"
	triggerTaskQueue    = "trigger-execution"
	defaultTemporalHost = "127.0.0.1:7233"
)

func main() {
	if err := runWorker(); err != nil {
		fmt.Fprintln(os.Stderr, "agentrun-worker:", err)
		os.Exit(1)
	}
}

func runWorker() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := telemetry.NewClueLogger()

	temporalCli, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  envOr("TEMPORAL_HOST_PORT", defaultTemporalHost),
		Namespace: envOr("TEMPORAL_NAMESPACE", "default"),
	})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer temporalCli.Close()

	eng, err := temporalengine.New(temporalengine.Options{
		Client: temporalCli,
		WorkerOptions: temporalengine.WorkerOptions{
			TaskQueue: agentTaskQueue,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	defer eng.Close()

	modelClient, err := buildModelClient(ctx)
	if err != nil {
		return fmt.Errorf("build model client: %w", err)
	}

	toolCaller, err := buildToolCaller(ctx)
	if err != nil {
		return fmt.Errorf("build tool caller: %w", err)
	}

	catalogueClient, err := buildCatalogueClient()
	if err != nil {
		return fmt.Errorf("build catalogue client: %w", err)
	}

	mongoCli, err := dialMongo(ctx)
	if err != nil {
		return fmt.Errorf("dial mongo: %w", err)
	}
	if mongoCli != nil {
		defer mongoCli.Disconnect(context.Background())
	}

	publisher, err := buildPublisher(mongoCli, logger)
	if err != nil {
		return fmt.Errorf("build event publisher: %w", err)
	}

	triggerStore, err := buildTriggerStore(mongoCli)
	if err != nil {
		return fmt.Errorf("build trigger store: %w", err)
	}

	memoryStore, err := buildMemoryStore(mongoCli)
	if err != nil {
		return fmt.Errorf("build memory store: %w", err)
	}

	activities := &runtime.Activities{
		Catalogue: catalogueClient,
		Model:     modelClient,
		Tools:     toolCaller,
		Publisher: publisher,
		Memory:    memoryStore,
	}
	if err := activities.Register(ctx, eng); err != nil {
		return fmt.Errorf("register agent activities: %w", err)
	}
	rt := runtime.NewRuntime(activities)
	if err := rt.Register(ctx, eng); err != nil {
		return fmt.Errorf("register agent workflow: %w", err)
	}

	taskCreator := &workflowTaskCreator{engine: eng, taskQueue: agentTaskQueue}
	triggerSvc, err := trigger.NewService(trigger.Options{
		Store:     triggerStore,
		Schedules: eng,
		Catalogue: catalogueClient,
		Tasks:     taskCreator,
		Logger:    logger,
		Workflow:  triggerwf.WorkflowName,
		TaskQueue: triggerTaskQueue,
	})
	if err != nil {
		return fmt.Errorf("construct trigger service: %w", err)
	}

	triggerActivities := &triggerwf.Activities{Service: triggerSvc}
	if err := triggerActivities.Register(ctx, eng); err != nil {
		return fmt.Errorf("register trigger activities: %w", err)
	}
	triggerWorkflow := triggerwf.NewWorkflow(triggerActivities)
	if err := triggerWorkflow.Register(ctx, eng); err != nil {
		return fmt.Errorf("register trigger workflow: %w", err)
	}

	if err := eng.Worker().Start(); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	logger.Info(ctx, "agentrun-worker: started",
		"task_queues", []string{agentTaskQueue, triggerTaskQueue})

	<-ctx.Done()
	logger.Info(ctx, "agentrun-worker: shutting down")
	eng.Worker().Stop()
	return nil
}

// workflowTaskCreator implements trigger.TaskCreator by starting a fresh
// Agent Execution Workflow for each fired trigger, closing the data flow
// spec.md §2 describes: "Trigger... starts a new C6 instance."
type workflowTaskCreator struct {
	engine    engine.Engine
	taskQueue string
}

func (c *workflowTaskCreator) CreateTask(ctx context.Context, req trigger.TaskCreationRequest) (string, error) {
	taskID := fmt.Sprintf("trigger-task-%d", time.Now().UnixNano())
	query, _ := req.TaskParameters["task_query"].(string)
	if _, err := c.engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        taskID,
		Workflow:  runtime.WorkflowName,
		TaskQueue: c.taskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:           taskID,
			AgentID:          req.AgentID,
			TaskQuery:        query,
			TaskParameters:   req.TaskParameters,
			WorkflowMetadata: req.Metadata,
		},
	}); err != nil {
		return "", err
	}
	return taskID, nil
}

// secretResolver resolves provider API keys and other worker credentials,
// spec.md §4.1's secret-resolution collaborator. Environment-backed by
// default; any Resolver implementation (e.g. a vault-backed one) can be
// substituted without touching the model/catalogue construction below.
var secretResolver secrets.Resolver = secrets.EnvResolver{}

func buildModelClient(ctx context.Context) (model.Client, error) {
	provider := envOr("MODEL_PROVIDER", "anthropic")
	defaultModel := envOr("MODEL_DEFAULT_ID", "")
	switch provider {
	case "anthropic":
		apiKey, err := secretResolver.Resolve(ctx, "anthropic-api-key")
		if err != nil {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for MODEL_PROVIDER=anthropic: %w", err)
		}
		if defaultModel == "" {
			defaultModel = "claude-sonnet-4-5"
		}
		return anthropic.NewFromAPIKey(apiKey, defaultModel)
	case "openai":
		apiKey, err := secretResolver.Resolve(ctx, "openai-api-key")
		if err != nil {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for MODEL_PROVIDER=openai: %w", err)
		}
		if defaultModel == "" {
			defaultModel = "gpt-4o"
		}
		return openai.NewFromAPIKey(apiKey, defaultModel)
	default:
		return nil, fmt.Errorf("unknown MODEL_PROVIDER %q (want anthropic or openai)", provider)
	}
}

// buildToolCaller connects to a single MCP server named by MCP_SERVER_URL
// (streamable HTTP transport), grounded on the teacher's MCP client wiring
// pattern (connect once at startup, reuse the session for every call).
func buildToolCaller(ctx context.Context) (mcptool.Caller, error) {
	serverURL := os.Getenv("MCP_SERVER_URL")
	if serverURL == "" {
		return noopToolCaller{}, nil
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "agentrun-worker", Version: "v1.0.0"}, nil)
	transport := &mcp.StreamableClientTransport{Endpoint: serverURL}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect mcp server %q: %w", serverURL, err)
	}
	return mcptool.New(mcptool.Options{Session: session})
}

// noopToolCaller reports every tool call as having failed, used when no MCP
// server is configured so the worker can still start (e.g. for agents that
// rely solely on the completion sentinel).
type noopToolCaller struct{}

func (noopToolCaller) CallTool(_ context.Context, req mcptool.Request) (mcptool.Response, error) {
	return mcptool.Response{Success: false, Result: fmt.Sprintf("no tool server configured for %q", req.ToolName)}, nil
}

// buildPublisher wires the Redis Streams publisher (or a no-op if
// REDIS_ADDR is unset), then wraps it in a run.TrackingPublisher when mongo
// is available so WorkflowStarted/Completed/Failed/Cancelled events keep
// run.Store's coarse status current without any extra activity.
func buildPublisher(mongoCli *mongodriver.Client, logger telemetry.Logger) (hooks.Publisher, error) {
	addr := os.Getenv("REDIS_ADDR")
	var base hooks.Publisher = hooks.PublisherFunc(func([]hooks.Event) {})
	if addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		redisPub, err := hooks.NewRedisPublisher(hooks.RedisPublisherOptions{
			Client: rdb,
			Stream: envOr("REDIS_EVENT_STREAM", hooks.DefaultStream),
		})
		if err != nil {
			return nil, err
		}
		base = redisPub
	}
	if mongoCli == nil {
		return base, nil
	}
	runStore, err := run.NewMongoStore(run.MongoOptions{
		Client:   mongoCli,
		Database: envOr("MONGO_DATABASE", "agentrun"),
	})
	if err != nil {
		return nil, fmt.Errorf("construct run store: %w", err)
	}
	return &run.TrackingPublisher{Store: runStore, Next: base, Logger: logger}, nil
}

func buildCatalogueClient() (catalogue.Client, error) {
	baseURL := os.Getenv("CATALOGUE_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("CATALOGUE_BASE_URL is required")
	}
	return catalogue.NewHTTPClient(catalogue.HTTPClientOptions{BaseURL: baseURL})
}

// dialMongo connects to MONGO_URI if set. It returns a nil client (not an
// error) when unset; the caller decides what that means for each store
// (buildTriggerStore fails without a client).
func dialMongo(ctx context.Context) (*mongodriver.Client, error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		return nil, nil
	}
	cli, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return cli, nil
}

func buildTriggerStore(mongoCli *mongodriver.Client) (trigger.Store, error) {
	if mongoCli == nil {
		return nil, fmt.Errorf("MONGO_URI is required to persist triggers")
	}
	return triggermongo.New(triggermongo.Options{
		Client:   mongoCli,
		Database: envOr("MONGO_DATABASE", "agentrun"),
	})
}

// buildMemoryStore resolves the transcript store (spec.md §1 Non-goals scope
// long-term history storage out of the core contract, so unlike the trigger
// store this one degrades to an in-memory store instead of failing startup
// when MONGO_URI is unset).
func buildMemoryStore(mongoCli *mongodriver.Client) (memory.Store, error) {
	if mongoCli == nil {
		return memory.NewInMemoryStore(), nil
	}
	return memory.NewMongoStore(memory.MongoOptions{
		Client:   mongoCli,
		Database: envOr("MONGO_DATABASE", "agentrun"),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
