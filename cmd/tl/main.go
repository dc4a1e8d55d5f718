package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"threadlens/pkg/bridge"
	"threadlens/pkg/chat"
	"threadlens/pkg/config"
	"threadlens/pkg/decor"
	"threadlens/pkg/objcache"
	"threadlens/pkg/permalink"
	"threadlens/pkg/secret"
	"threadlens/pkg/tracker"
	"threadlens/pkg/ui"
	"threadlens/pkg/updater"
	"threadlens/pkg/version"
	"threadlens/pkg/watcher"
)

func main() {
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	resolveURL := flag.String("resolve", "", "Resolve one permalink, print the result, and exit")
	serve := flag.Bool("serve", false, "Run the websocket bridge for editor plugins")
	addr := flag.String("addr", "", "Bridge listen address (default "+config.DefaultBridgeAddr+")")
	flag.Parse()

	if *help {
		fmt.Println("Usage: tl [options] <file>")
		fmt.Println("\nShows the chat threads linked from source comments.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("tl %s\n", version.Version)
		os.Exit(0)
	}

	cfg := config.Load()
	resolveTokens(cfg)
	for _, err := range cfg.Validate() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	switch {
	case *resolveURL != "":
		runResolve(cfg, *resolveURL)
	case *serve:
		runServe(cfg, *addr)
	default:
		runTUI(cfg, flag.Arg(0))
	}
}

// resolveTokens expands op:// references in place. A failed lookup leaves
// the token empty so the feature degrades the same way as an unset key.
func resolveTokens(cfg *config.Config) {
	sec := secret.NewResolver()
	for _, t := range []struct {
		key string
		val *string
	}{
		{"TL_CHAT_TOKEN", &cfg.Runtime.ChatToken},
		{"TL_TRACKER_TOKEN", &cfg.Runtime.TrackerToken},
	} {
		resolved, err := sec.Resolve(*t.val)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: %v\n", t.key, err)
			*t.val = ""
			continue
		}
		*t.val = resolved
	}
}

// buildResolver wires the shared resolution stack. The tracker client is
// only attached when a token is configured; a nil client reads as "no
// tracker" everywhere downstream.
func buildResolver(cfg *config.Config, log *zap.SugaredLogger) *decor.Resolver {
	chatClient := chat.NewClient(cfg.Runtime.ChatAPIBase, cfg.Runtime.ChatToken, chat.WithLogger(log))
	var trackerClient decor.TrackerClient
	if cfg.Runtime.TrackerToken != "" {
		trackerClient = tracker.NewClient(cfg.Runtime.TrackerAPIURL, cfg.Runtime.TrackerToken, tracker.WithLogger(log))
	}
	return decor.NewResolver(chatClient, trackerClient, objcache.New(), log)
}

// fileLogger writes structured JSON to path. The terminal belongs to the
// TUI, so without a configured file logging is dropped.
func fileLogger(path string) (*zap.SugaredLogger, func()) {
	if path == "" {
		return zap.NewNop().Sugar(), func() {}
	}
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: log file: %v\n", err)
		return zap.NewNop().Sugar(), func() {}
	}
	return logger.Sugar(), func() { _ = logger.Sync() }
}

func runTUI(cfg *config.Config, path string) {
	if path == "" {
		fmt.Println("Usage: tl [options] <file>")
		fmt.Println("Run 'tl -help' for options.")
		os.Exit(1)
	}

	log, syncLog := fileLogger(cfg.Runtime.LogFile)
	defer syncLog()

	doc, err := ui.OpenFileDocument(path)
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", path, err)
		os.Exit(1)
	}

	res := buildResolver(cfg, log)
	sink := ui.NewProgramSink()
	eng := decor.NewEngine(decor.EngineConfig{
		Matcher:    permalink.New(cfg.Runtime.WorkspaceHosts...),
		Resolver:   res,
		Sink:       sink,
		Settings:   cfg.Settings,
		Logger:     log,
		OnSnapshot: sink.Snapshot,
	})
	defer eng.Close()

	w, err := watcher.New(path, watcher.WithLogger(log))
	if err != nil {
		log.Warnw("file watch unavailable", "path", path, "error", err)
		w = nil
	} else {
		defer w.Close()
	}

	m := ui.NewModel(eng, res, doc, w, cfg.Settings, log)
	p := tea.NewProgram(m, tea.WithAltScreen())
	sink.Attach(p)
	eng.OpenView(doc)

	if cfg.Runtime.UpdateCheck {
		go func() {
			tag, url, err := updater.CheckForUpdates()
			if err == nil && tag != "" {
				p.Send(ui.UpdateMsg{Version: tag, URL: url})
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running threadlens: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cfg *config.Config, addrFlag string) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	addr := cfg.Runtime.BridgeAddr
	if addrFlag != "" {
		addr = addrFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := bridge.NewHub(bridge.Config{
		Matcher:  permalink.New(cfg.Runtime.WorkspaceHosts...),
		Resolver: buildResolver(cfg, log),
		Settings: cfg.Settings,
		Logger:   log,
	})
	go hub.Run(ctx)

	srv := bridge.NewServer(addr, hub, log)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("bridge shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalw("bridge failed", "error", err)
	}
}

// stringDoc backs one-shot resolution with an in-memory document whose
// whole text is the permalink.
type stringDoc struct {
	text string
}

func (d stringDoc) ID() string   { return "resolve" }
func (d stringDoc) Text() string { return d.text }
func (d stringDoc) Version() int { return 1 }

func runResolve(cfg *config.Config, rawURL string) {
	log := zap.NewNop().Sugar()

	matcher := permalink.New(cfg.Runtime.WorkspaceHosts...)
	if _, ok := matcher.Parse(rawURL); !ok {
		fmt.Printf("Error: not a recognized permalink: %s\n", rawURL)
		os.Exit(1)
	}

	snaps := make(chan *decor.Snapshot, 1)
	eng := decor.NewEngine(decor.EngineConfig{
		Matcher:  matcher,
		Resolver: buildResolver(cfg, log),
		Settings: cfg.Settings,
		Logger:   log,
		OnSnapshot: func(s *decor.Snapshot) {
			select {
			case snaps <- s:
			default:
			}
		},
	})
	defer eng.Close()

	eng.OpenView(stringDoc{text: rawURL})

	var snap *decor.Snapshot
	select {
	case snap = <-snaps:
	case <-time.After(30 * time.Second):
		fmt.Println("Error: resolve timed out")
		os.Exit(1)
	}

	if len(snap.Links) == 0 {
		fmt.Printf("Error: not a recognized permalink: %s\n", rawURL)
		os.Exit(1)
	}
	if err := snap.Links[0].Err; err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	h, ok := eng.HoverAt(ctx, "resolve", 0)
	if !ok {
		fmt.Println("Error: nothing resolved")
		os.Exit(1)
	}
	fmt.Println(h.Markdown)
}
