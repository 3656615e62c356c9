package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/localchat/ragchat/internal/client"
	"github.com/localchat/ragchat/internal/extract"
	"github.com/localchat/ragchat/internal/store"
	"github.com/localchat/ragchat/internal/tui"
	"github.com/localchat/ragchat/internal/voice"
)

type options struct {
	Server   string
	Think    bool
	Plain    bool
	Doc      string
	Watch    bool
	Upload   bool
	SpeakCmd string
	Session  string
	LogPath  string
	NoStream bool
	MaxBytes int64
}

func main() {
	_ = godotenv.Load()

	opts := parseFlags()
	if err := run(opts); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.Server, "server", envOr("RAGCHAT_SERVER", "http://localhost:8080"), "Chat server base URL")
	flag.BoolVar(&opts.Think, "think", false, "Ask the model for visible reasoning")
	flag.BoolVar(&opts.Plain, "plain", false, "Line mode instead of the full-screen UI")
	flag.StringVar(&opts.Doc, "doc", "", "Document to attach for retrieval")
	flag.BoolVar(&opts.Watch, "watch", false, "Re-extract the attached document when it changes")
	flag.BoolVar(&opts.Upload, "upload", false, "Extract -doc on the server instead of locally")
	flag.StringVar(&opts.SpeakCmd, "speak-cmd", os.Getenv("RAGCHAT_SPEAK_CMD"), `Command that speaks text, e.g. "espeak-ng --stdin" or "say {}"`)
	flag.StringVar(&opts.Session, "session", "", "Saved chat id to open")
	flag.StringVar(&opts.LogPath, "log", "", "Write logs to this file")
	flag.BoolVar(&opts.NoStream, "no-stream", false, "Wait for whole replies when no document is attached")
	flag.Int64Var(&opts.MaxBytes, "max-bytes", extract.MaxDocumentBytes, "Largest document accepted")
	flag.Parse()
	return opts
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func setupLogging(opts options) (io.Closer, error) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if opts.LogPath != "" {
		return tea.LogToFile(opts.LogPath, "chat ")
	}
	if !opts.Plain {
		// Log lines would tear the full-screen UI.
		log.SetOutput(io.Discard)
	}
	return nil, nil
}

func run(opts options) error {
	logFile, err := setupLogging(opts)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(opts.Server)
	extractor := extract.Extractor{MaxBytes: opts.MaxBytes}

	var program atomic.Pointer[tea.Program]
	notify := func(msg tea.Msg) bool {
		if p := program.Load(); p != nil {
			p.Send(msg)
			return true
		}
		return false
	}

	convOpts := []client.Option{
		client.WithReasoning(opts.Think),
		client.WithStreaming(!opts.NoStream),
		client.WithStatusHandler(func(status string) {
			if status == "" {
				return
			}
			if !notify(tui.StatusMsg(status)) {
				color.Yellow("%s", status)
			}
		}),
	}

	var speaker *voice.Speaker
	if opts.SpeakCmd != "" {
		synth, err := voice.NewExecSynthesizer(opts.SpeakCmd)
		if err != nil {
			return err
		}
		var machine *voice.Machine
		machine = voice.NewMachine(nil, func(s voice.State) {
			if text := voice.StatusText(s, machine.Conversation()); text != "" {
				notify(tui.StatusMsg(text))
			}
		})
		machine.SetConversation(true)
		speaker = voice.NewSpeaker(synth, machine, func(err error) {
			notify(tui.StatusMsg("Speech output error."))
		})
		defer speaker.Close()
		convOpts = append(convOpts, client.WithSpeech(speaker))
	}

	conv := client.NewConversation(api, convOpts...)
	defer conv.Close()
	if speaker != nil {
		conv.SetVoice(true)
	}

	if opts.Session != "" {
		id, err := store.ParseSessionID(opts.Session)
		if err != nil {
			return fmt.Errorf("invalid -session %q", opts.Session)
		}
		if err := conv.LoadSession(ctx, id); err != nil {
			return fmt.Errorf("opening chat %d: %w", id, err)
		}
	}

	if opts.Doc != "" {
		text, err := loadDocument(ctx, api, extractor, opts.Doc, opts.Upload)
		if err != nil {
			return err
		}
		conv.AttachDocument(filepath.Base(opts.Doc), text)
	}

	watcher := &docWatcher{ctx: ctx, extractor: extractor, enabled: opts.Watch}
	watcher.onChange = func(path, text string, err error) {
		name := filepath.Base(path)
		if notify(tui.DocumentMsg{Name: name, Text: text, Err: err}) {
			return
		}
		if err != nil {
			color.Red("Document reload failed: %v", err)
			return
		}
		conv.AttachDocument(name, text)
		color.Green("Reloaded %s.", name)
	}
	if opts.Doc != "" {
		watcher.Follow(opts.Doc)
	}
	defer watcher.Stop()

	commands := &client.Commands{Conv: conv, Extractor: extractor, OnAttach: watcher.Follow}

	if opts.Plain {
		return runPlain(ctx, conv, commands, os.Stdin)
	}

	p := tea.NewProgram(tui.New(ctx, conv, commands), tea.WithAltScreen(), tea.WithContext(ctx))
	program.Store(p)
	_, err = p.Run()
	program.Store(nil)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func loadDocument(ctx context.Context, api *client.Client, extractor extract.Extractor, path string, upload bool) (string, error) {
	if !upload {
		return extractor.ExtractFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}
	return api.UploadDocument(ctx, filepath.Base(path), data)
}

// docWatcher re-extracts the most recently attached document on change.
type docWatcher struct {
	ctx       context.Context
	extractor extract.Extractor
	enabled   bool
	onChange  func(path, text string, err error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (w *docWatcher) Follow(path string) {
	if !w.enabled {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(w.ctx)
	w.cancel = cancel
	go func() {
		err := w.extractor.Watch(ctx, path, func(text string, err error) {
			w.onChange(path, text, err)
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("Watching %s stopped: %v", path, err)
		}
	}()
}

func (w *docWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}
