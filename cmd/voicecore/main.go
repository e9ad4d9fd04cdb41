// Command voicecore runs the real-time voice call media engine as an HTTP
// process: one WebSocket endpoint accepts the telephony provider's media
// stream per call, one webhook endpoint accepts the provider's
// out-of-band call-lifecycle and DTMF events. Process wiring (signal
// handling, context cancellation on SIGINT/SIGTERM) follows the teacher's
// examples/sip-test/main.go shutdown pattern.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rapidaai/voicecore/internal/callcontext"
	"github.com/rapidaai/voicecore/internal/commons"
	"github.com/rapidaai/voicecore/internal/config"
	"github.com/rapidaai/voicecore/internal/handler"
	"github.com/rapidaai/voicecore/internal/llm"
	"github.com/rapidaai/voicecore/internal/memory"
	"github.com/rapidaai/voicecore/internal/pool"
	"github.com/rapidaai/voicecore/internal/registry"
	"github.com/rapidaai/voicecore/internal/speech"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := commons.NewApplicationLogger(commons.Config{Development: os.Getenv("ENV") != "production"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Registers a real SDK TracerProvider so internal/telemetry.Tracer's
	// spans are recorded rather than silently dropped by otel's no-op
	// default. No exporter is attached yet (spec.md places metrics/tracing
	// export out of scope); wiring a real exporter here is the only
	// further step needed once one is chosen.
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Errorw("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("voicecore: shutdown signal received")
		cancel()
	}()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: app.routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infow("voicecore: listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorw("voicecore: server error", "error", err)
		os.Exit(1)
	}
}

// app holds the process-wide dependencies every per-call MediaHandler is
// built from: shared pools, the shared CallRegistry, and the shared
// stores. HTTP routing and request decoding are intentionally minimal
// here (spec.md §1 places them out of scope); this is the thinnest glue
// that gets a *websocket.Conn and a provider webhook payload to a
// MediaHandler.
type app struct {
	cfg      *config.Config
	logger   commons.Logger
	registry *registry.Registry
	ccStore  callcontext.Store
	memStore *memory.AsyncStore
	recPool  *pool.Pool[speech.RecognizerEngine]
	synPool  *pool.Pool[speech.SynthesizerEngine]
	llm      *llm.Streamer
	upgrader websocket.Upgrader
}

func newApp(cfg *config.Config, logger commons.Logger) (*app, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&callcontext.CallContext{}); err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	memStore := memory.NewAsyncStore(memory.NewRedisStore(redisClient, logger), logger)

	recPool, err := pool.New[speech.RecognizerEngine](logger, "recognizer", cfg.PoolSizeSTT, func() (speech.RecognizerEngine, error) {
		return speech.NewAzureRecognizer(logger, cfg.AzureSpeechKey, cfg.AzureSpeechRegion, cfg.DefaultLanguage), nil
	})
	if err != nil {
		return nil, err
	}
	synPool, err := pool.New[speech.SynthesizerEngine](logger, "synthesizer", cfg.PoolSizeTTS, func() (speech.SynthesizerEngine, error) {
		return speech.NewAzureSynthesizer(logger, cfg.AzureSpeechKey, cfg.AzureSpeechRegion, cfg.DefaultLanguage), nil
	})
	if err != nil {
		return nil, err
	}

	openaiClient := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry.New(logger),
		ccStore:  callcontext.NewStore(gdb, logger),
		memStore: memStore,
		recPool:  recPool,
		synPool:  synPool,
		llm:      llm.New(logger, openaiClient),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}, nil
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/media/", a.handleMedia)
	mux.HandleFunc("/events/", a.handleProviderEvent)
	return mux
}

// handleMedia upgrades the telephony provider's per-call connection and
// runs a MediaHandler for its lifetime. callID is the last path segment
// of /media/{callID}, matching the provider's media-stream URL convention.
func (a *app) handleMedia(w http.ResponseWriter, r *http.Request) {
	callID := lastPathSegment(r.URL.Path)
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warnw("voicecore: websocket upgrade failed", "call_id", callID, "error", err)
		return
	}

	h := handler.New(a.callConfig(callID), handler.Dependencies{
		Logger:           a.logger,
		Registry:         a.registry,
		CallContextStore: a.ccStore,
		MemoryStore:      a.memStore,
		RecognizerPool:   a.recPool,
		SynthesizerPool:  a.synPool,
		LLM:              a.llm,
	})

	if err := h.Run(r.Context(), conn); err != nil {
		a.logger.Warnw("voicecore: media handler exited with error", "call_id", callID, "error", err)
	}
}

// callConfig builds per-call handler configuration. A production
// deployment would source greeting text, model parameters, and tool
// definitions from the call context row or an assistant-configuration
// lookup; defaults are used here since that lookup belongs to the
// out-of-scope HTTP/config layer spec.md §1 excludes.
func (a *app) callConfig(callID string) handler.Config {
	return handler.Config{
		CallID:            callID,
		ValidationEnabled: a.cfg.DTMFValidationEnabled,
		GreetingText:      "Hello, how can I help you today?",
		GreetingLang:      a.cfg.DefaultLanguage,
		ErrorMessageText:  "Sorry, something went wrong. Please try again.",
		ErrorMessageLang:  a.cfg.DefaultLanguage,
		ModelID:           "gpt-4o-mini",
		Temperature:       0.7,
		TopP:              1.0,
		MaxTokens:         512,
	}
}

// handleProviderEvent dispatches an out-of-band provider webhook
// (call-state changes, DTMF tones) to the live MediaHandler for its
// call, looked up in the CallRegistry. Returns 404 if no handler is
// currently running for that call (e.g. a late event after teardown).
func (a *app) handleProviderEvent(w http.ResponseWriter, r *http.Request) {
	callID := lastPathSegment(r.URL.Path)
	h, ok := a.registry.Lookup(callID)
	if !ok {
		http.Error(w, "no active call", http.StatusNotFound)
		return
	}
	peh, ok := h.(handler.ProviderEventHandler)
	if !ok {
		http.Error(w, "handler does not support provider events", http.StatusInternalServerError)
		return
	}

	event, err := decodeProviderEvent(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := dispatchProviderEvent(r.Context(), peh, event); err != nil {
		a.logger.Warnw("voicecore: provider event handling failed", "call_id", callID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func lastPathSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
