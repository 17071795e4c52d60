// Package main is the Sensei CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/analysis"
	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/chat"
	"github.com/hyperjump/sensei/internal/cli"
	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/conversation"
	"github.com/hyperjump/sensei/internal/doubts"
	"github.com/hyperjump/sensei/internal/embedding"
	"github.com/hyperjump/sensei/internal/knowledge"
	"github.com/hyperjump/sensei/internal/metrics"
	"github.com/hyperjump/sensei/internal/models"
	"github.com/hyperjump/sensei/internal/server"
	"github.com/hyperjump/sensei/internal/storage"
	"github.com/hyperjump/sensei/internal/watcher"
	"github.com/hyperjump/sensei/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "~/.sensei/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, and a missing default file means built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return config.Default(), "", nil
		}
		path = filepath.Join(home, strings.TrimPrefix(defaultConfigPath, "~/"))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "chat":
		runChat()
	case "summarize":
		runSummarize()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("sensei version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("backend", cfg.Backend.Active),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}

	if kb := components.Knowledge; cfg.Knowledge.Watch && kb.Path() != "" {
		w := watcher.New(kb.Path(), func() {
			if err := kb.Reload(ctx); err != nil {
				logger.Warn("knowledge reload failed", zap.Error(err))
			}
		}, watcher.WithLogger(logger), watcher.WithFilter(knowledge.IsKnowledgeFile))
		if err := w.Start(ctx); err != nil {
			logger.Warn("knowledge watcher not started", zap.String("path", kb.Path()), zap.Error(err))
		} else {
			components.Watcher = w
			logger.Info("watching knowledge base", zap.String("root", w.Root()))
		}
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Doubts,
		&cfg.Server,
		server.WithLogger(logger),
		server.WithKnowledge(components.Knowledge, cfg.Knowledge.TopK),
		server.WithBackendFactory(components.NewBackend),
		server.WithMetrics(components.Metrics),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	err = serve(srv, sigChan, logger)
	cancel()
	components.Close()
	if err != nil {
		logger.Error("Server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

type startStopper interface {
	Start() error
	Stop(ctx context.Context) error
}

// serve runs srv until it fails or a signal arrives on stop, then shuts it down.
func serve(srv startStopper, stop <-chan os.Signal, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-stop:
	}
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(os.Args[2:])

	path, err := writeDefaultConfig(*configPath, *force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", path)
}

// writeDefaultConfig saves config.Default() to path ("~/" expanded), creating parent
// directories. An existing file is kept unless force is set.
func writeDefaultConfig(path string, force bool) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return "", err
	}
	return path, nil
}

// argsReorder moves any flags (and their values) that appear after the positional arguments
// to the front so that flag.Parse() sees them. Go's flag package stops at the first
// non-flag argument, so `sensei chat "hi" -mode academic` would otherwise ignore -mode.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args with spaces so multi-word messages work with or without
// shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run in-process)")
	modeFlag := fs.String("mode", "", "mode: academic, doubt_clarification, study_help or general")
	conversationID := fs.String("conversation", "", "conversation id to continue")
	noKB := fs.Bool("no-kb", false, "do not use the knowledge base")
	stream := fs.Bool("stream", false, "print the answer as it is generated")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	message := joinArgs(fs.Args())
	if message == "" {
		fmt.Println("Usage: sensei chat [flags] <message>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	useKB := !*noKB
	req := &chat.Request{
		Message:          message,
		Mode:             *modeFlag,
		ConversationID:   *conversationID,
		UseKnowledgeBase: &useKB,
	}

	if *serverURL != "" {
		if *stream && format == cli.OutputText {
			err = streamViaHTTP(*serverURL, req, os.Stdout)
		} else {
			var resp *chat.Response
			if resp, err = chatViaHTTP(*serverURL, req); err == nil {
				err = cli.WriteChatResponse(os.Stdout, resp, format)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// In-process: conversations only outlive the command with a persistent storage driver.
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	if *stream && format == cli.OutputText {
		err = streamInProcess(ctx, components.Orchestrator, req, os.Stdout)
	} else {
		var resp *chat.Response
		if resp, err = components.Orchestrator.Chat(ctx, req); err == nil {
			err = cli.WriteChatResponse(os.Stdout, resp, format)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
}

func streamInProcess(ctx context.Context, orch *chat.Orchestrator, req *chat.Request, w io.Writer) error {
	sess, err := orch.Stream(ctx, req)
	if err != nil {
		return err
	}
	for c := range sess.Chunks() {
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
	if err := sess.Err(); err != nil {
		return err
	}
	cli.WriteChatFooter(w, sess.ConversationID, sess.Sources)
	return nil
}

// httpError turns a non-2xx response into an error carrying the server's message.
func httpError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func postJSON(serverURL, path string, v interface{}) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func getJSON(serverURL, path string, v interface{}) error {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func chatViaHTTP(serverURL string, req *chat.Request) (*chat.Response, error) {
	resp, err := postJSON(serverURL, "/chatbot/chat", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var out chat.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func streamViaHTTP(serverURL string, req *chat.Request, w io.Writer) error {
	resp, err := postJSON(serverURL, "/chatbot/chat/stream", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	var (
		conversationID string
		sources        []string
	)
	err = cli.ReadStream(resp.Body, func(ev cli.StreamEvent) {
		if ev.ConversationID != "" {
			conversationID, sources = ev.ConversationID, ev.Sources
		}
		fmt.Fprint(w, ev.Chunk)
	})
	fmt.Fprintln(w)
	if err != nil {
		return err
	}
	cli.WriteChatFooter(w, conversationID, sources)
	return nil
}

func runSummarize() {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", "", "server URL to upload to (empty = summarize in-process)")
	course := fs.String("course", "", "course code")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: sensei summarize [flags] <file|->")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var in io.Reader = os.Stdin
	if name := fs.Arg(0); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", name, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}
	upload, err := cli.ReadDoubts(in, *course)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var res *models.SummaryResult
	if *serverURL != "" {
		res, err = summarizeViaHTTP(*serverURL, upload)
	} else {
		res, err = summarizeInProcess(*configPath, upload)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Summarize failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSummary(os.Stdout, res, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// summarizeInProcess clusters one export without any server or persistent storage.
func summarizeInProcess(configPath string, upload *doubts.UploadRequest) (*models.SummaryResult, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	opts := []doubts.ServiceOption{doubts.WithLogger(logger)}
	if cfg.Doubts.LLMSummary {
		adapter, err := newBackend(cfg, nil, logger)(cfg.Backend.Active)
		if err != nil {
			logger.Warn("llm summary disabled", zap.Error(err))
		} else {
			opts = append(opts, doubts.WithSummarizer(doubts.NewSummarizer(
				doubts.WithSummaryLogger(logger),
				doubts.WithLLM(func() backend.Adapter { return adapter }),
			)))
		}
	}
	if cfg.Doubts.UseEmbeddings {
		emb, err := newEmbedder(cfg.Knowledge)
		if err != nil {
			return nil, err
		}
		opts = append(opts, doubts.WithEmbedder(emb))
	}
	svc := doubts.NewService(storage.NewMemoryStorage(), cfg.Doubts, opts...)
	ctx := context.Background()
	if _, err := svc.Upload(ctx, upload); err != nil {
		return nil, err
	}
	return svc.Summary(ctx, upload.CourseCode)
}

func summarizeViaHTTP(serverURL string, upload *doubts.UploadRequest) (*models.SummaryResult, error) {
	resp, err := postJSON(serverURL, "/doubts/upload", upload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, httpError(resp)
	}
	var res models.SummaryResult
	course := strings.TrimSpace(upload.CourseCode)
	if err := getJSON(serverURL, "/doubts/summary?course_code="+url.QueryEscape(course), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// remoteStatus is the shape of GET /chatbot/status.
type remoteStatus struct {
	chat.Status
	KnowledgeSnippets int `json:"knowledge_snippets"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = inspect the local config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var (
		status    remoteStatus
		diskBytes int64 = -1
	)
	if *serverURL != "" {
		if err := getJSON(*serverURL, "/chatbot/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(context.Background(), cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status = remoteStatus{Status: components.Orchestrator.Status(), KnowledgeSnippets: components.Knowledge.Size()}
		paths := []string{cfg.Knowledge.Path}
		if cfg.Storage.Driver == "sqlite" {
			paths = append(paths, cfg.Storage.DatabasePath)
		}
		if n, err := storage.DiskUsageBytes(paths...); err == nil {
			diskBytes = n
		}
	}

	if err := cli.WriteStatus(os.Stdout, &status.Status, status.KnowledgeSnippets, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputText && diskBytes >= 0 {
		fmt.Printf("disk_usage_bytes:   %d   # knowledge base + database on disk\n", diskBytes)
	}
}

// Components holds initialized services.
type Components struct {
	Storage       storage.Storage
	Conversations *conversation.Store
	Knowledge     *knowledge.Retriever
	Orchestrator  *chat.Orchestrator
	Doubts        *doubts.Service
	Metrics       *metrics.Metrics
	Watcher       *watcher.Watcher
	NewBackend    server.BackendFactory
}

func (c *Components) Close() {
	if c.Watcher != nil {
		c.Watcher.Stop()
	}
	if c.Knowledge != nil {
		_ = c.Knowledge.Close()
	}
	if c.Conversations != nil {
		_ = c.Conversations.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func newEmbedder(cfg config.KnowledgeConfig) (embedding.Embedder, error) {
	an, err := analysis.New()
	if err != nil {
		return nil, err
	}
	return embedding.NewCachedEmbedder(embedding.NewHashingEmbedder(cfg.EmbeddingDims, an), cfg.CacheSize), nil
}

// newBackend returns a factory sharing one rate limiter, so switching backends keeps the same
// outbound budget. With kb set, framework backends get the knowledge search tool.
func newBackend(cfg *config.Config, kb backend.Searcher, logger *zap.Logger) server.BackendFactory {
	opts := []backend.Option{
		backend.WithLogger(logger),
		backend.WithLimiter(backend.NewLimiter(cfg.Backend.RateLimit)),
	}
	if kb != nil {
		opts = append(opts, backend.WithTools(backend.NewKnowledgeTool(kb, cfg.Knowledge.TopK)))
	}
	return func(kind string) (backend.Adapter, error) {
		if missingCredentials(kind, cfg.Backend) {
			return nil, fmt.Errorf("%w: %s needs backend.openai.api_key", models.ErrBackendUnavailable, kind)
		}
		return backend.New(kind, cfg.Backend, opts...)
	}
}

// missingCredentials reports whether kind would call the hosted OpenAI API without a key.
func missingCredentials(kind string, cfg config.BackendConfig) bool {
	usesOpenAI := kind == backend.KindDirectAPI || (kind == backend.KindFramework && cfg.Framework.Inner == backend.KindDirectAPI)
	return usesOpenAI && cfg.OpenAI.APIKey == "" && strings.Contains(cfg.OpenAI.BaseURL, "api.openai.com")
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	st, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: st, Metrics: metrics.New()}

	storeOpts := []conversation.Option{conversation.WithLogger(logger)}
	if cfg.Conversation.Persist {
		storeOpts = append(storeOpts, conversation.WithStorage(st))
	}
	c.Conversations = conversation.NewStore(cfg.Conversation, storeOpts...)
	c.Metrics.RegisterConversationGauge(c.Conversations.Len)

	emb, err := newEmbedder(cfg.Knowledge)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Knowledge, err = knowledge.NewRetriever(cfg.Knowledge, knowledge.WithLogger(logger), knowledge.WithEmbedder(emb))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize knowledge base: %w", err)
	}
	if cfg.Knowledge.Path != "" {
		if err := c.Knowledge.Load(ctx); err != nil {
			// An empty knowledge base is valid; chat still works without context.
			logger.Warn("knowledge base not loaded", zap.String("path", cfg.Knowledge.Path), zap.Error(err))
		}
	}

	c.NewBackend = newBackend(cfg, c.Knowledge, logger)
	adapter, err := c.NewBackend(cfg.Backend.Active)
	if err != nil {
		logger.Warn("no chat backend configured", zap.String("backend", cfg.Backend.Active), zap.Error(err))
		adapter = nil
	}
	c.Orchestrator = chat.NewOrchestrator(c.Conversations, adapter, cfg.Backend,
		chat.WithLogger(logger),
		chat.WithRetriever(c.Knowledge, cfg.Knowledge.TopK),
		chat.WithMetrics(c.Metrics),
	)

	doubtOpts := []doubts.ServiceOption{doubts.WithLogger(logger), doubts.WithMetrics(c.Metrics)}
	if cfg.Doubts.UseEmbeddings {
		doubtOpts = append(doubtOpts, doubts.WithEmbedder(emb))
	}
	if cfg.Doubts.LLMSummary {
		doubtOpts = append(doubtOpts, doubts.WithSummarizer(doubts.NewSummarizer(
			doubts.WithSummaryLogger(logger),
			doubts.WithLLM(c.Orchestrator.Backend),
		)))
	}
	c.Doubts = doubts.NewService(st, cfg.Doubts, doubtOpts...)
	return c, nil
}

func printUsage() {
	fmt.Println(`sensei - Course chatbot and doubt summarizer

Usage:
  sensei server [flags]               Start the HTTP server
  sensei chat [flags] <message>       Ask the chatbot
  sensei summarize [flags] <file|->   Cluster and summarize student doubts
  sensei status [flags]               Show backend, modes and knowledge base size
  sensei init [flags]                 Write a default config file
  sensei version                      Show version
  sensei help                         Show this help

Server Flags:
  --config string    Config file path (default: ./config.yaml, then ~/.sensei/config.yaml)
  --debug            Enable debug logging

Chat Flags:
  --server string          Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --mode string            academic, doubt_clarification, study_help or general (default: general)
  --conversation string    Conversation id to continue
  --no-kb                  Do not use the knowledge base
  --stream                 Print the answer as it is generated
  --output string          Output format: text or json (default: text)

Summarize Flags:
  --course string    Course code (overrides course_code in a JSON file)
  --server string    Upload to this server and fetch its summary (default: in-process)
  --output string    Output format: text or json (default: text)

Init Flags:
  --config string    Where to write (default: ~/.sensei/config.yaml)
  --force            Overwrite an existing file

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to inspect the local config.
  --output string    Output format: text or json (default: text)

Examples:
  sensei init
  sensei server
  sensei chat "What is a pointer?"
  sensei chat --mode doubt_clarification --stream "Why does my recursion never stop?"
  sensei chat --conversation 3f1c... "And the base case?"
  sensei summarize --course CS1010 forum-export.txt
  sensei summarize --output json export.json
  sensei status --output json`)
}
