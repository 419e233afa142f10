// Command tutor-chat is an interactive terminal client for the tutoring
// engine: text chat, comic generation, and live voice against a running
// backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/brightclass/tutorlive/internal/dotenv"
	"github.com/brightclass/tutorlive/pkg/core/config"
	"github.com/brightclass/tutorlive/pkg/core/reduce"
	"github.com/brightclass/tutorlive/pkg/core/transcript"
	tutor "github.com/brightclass/tutorlive/sdk"
)

type cliConfig struct {
	BaseURL string
	APIKey  string
	VoiceID string
	EnvFile string

	engine config.Config
}

func parseCLIConfig(args []string, getenv func(string) string) (cliConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := cliConfig{}
	fs := flag.NewFlagSet("tutor-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", "", "backend base URL (default TUTOR_BACKEND_URL)")
	fs.StringVar(&cfg.APIKey, "api-key", strings.TrimSpace(getenv("TUTOR_API_KEY")), "bearer token (or TUTOR_API_KEY)")
	fs.StringVar(&cfg.VoiceID, "voice-id", "", "voice for /voice mode (default TUTOR_VOICE_ID)")
	fs.StringVar(&cfg.EnvFile, "env", ".env", "env file to load before reading TUTOR_* variables")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func (cfg *cliConfig) resolve() error {
	if cfg.EnvFile != "" {
		if err := dotenv.Load(cfg.EnvFile); err != nil {
			return err
		}
	}
	engine, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if cfg.BaseURL != "" {
		engine.BackendBaseURL = cfg.BaseURL
	}
	if cfg.APIKey != "" {
		engine.APIKey = cfg.APIKey
	}
	if cfg.VoiceID != "" {
		engine.DefaultVoiceID = cfg.VoiceID
	}
	cfg.engine = engine
	return nil
}

// streamPrinter renders the transcript incrementally: the active streaming
// turn is printed as a growing suffix, finalized turns get a closing newline.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	turnID  string
	printed int
}

func (p *streamPrinter) observe(turns []transcript.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var active *transcript.Turn
	for i := range turns {
		if turns[i].Streaming {
			active = &turns[i]
			break
		}
	}

	if active == nil {
		if p.turnID == "" {
			return
		}
		// The tracked turn finalized; print whatever we had not flushed yet.
		for i := range turns {
			if turns[i].ID == p.turnID {
				if len(turns[i].Content) > p.printed {
					fmt.Fprint(p.out, turns[i].Content[p.printed:])
				}
				fmt.Fprintln(p.out)
			}
		}
		p.turnID = ""
		p.printed = 0
		return
	}

	if active.ID != p.turnID {
		p.turnID = active.ID
		p.printed = 0
		fmt.Fprint(p.out, "[tutor] ")
	}
	if len(active.StreamingContent) > p.printed {
		fmt.Fprint(p.out, active.StreamingContent[p.printed:])
		p.printed = len(active.StreamingContent)
	}
}

// panelPrinter announces comic panels as the materialized view grows.
type panelPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	seen map[int]string
}

func (p *panelPrinter) observe(v reduce.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen == nil {
		p.seen = make(map[int]string)
	}
	for _, part := range v.Parts {
		if p.seen[part.Index] == part.URL {
			continue
		}
		p.seen[part.Index] = part.URL
		fmt.Fprintf(p.out, "\n[panel %d] %s (%s)\n", part.Index, part.URL, part.Caption)
	}
}

func (p *panelPrinter) reset() {
	p.mu.Lock()
	p.seen = nil
	p.mu.Unlock()
}

// voiceSession bundles the audio processes behind one /voice connection.
type voiceSession struct {
	mic    *micCapture
	player *pcmPlayer
}

func (v *voiceSession) close() {
	if v == nil {
		return
	}
	v.mic.Close()
	v.player.Close()
}

func run(ctx context.Context, cfg cliConfig, in io.Reader, out, errOut io.Writer) error {
	if err := cfg.resolve(); err != nil {
		return err
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := tutor.NewClient(
		tutor.WithConfig(cfg.engine),
		tutor.WithAPIKey(cfg.engine.APIKey),
		tutor.WithLogger(logger),
	)

	if err := client.Sessions.EnsureSession(ctx); err != nil {
		return fmt.Errorf("provision session: %w", err)
	}
	fmt.Fprintf(out, "Connected to %s (session %s)\n", cfg.engine.BackendBaseURL, client.Sessions.SessionID())
	fmt.Fprintln(out, "Commands: /comic <prompt>, /voice, /mute, /stop, /new, /exit. Anything else is sent as a message.")

	printer := &streamPrinter{out: out}
	unsubscribe := client.Transcript().Subscribe(func() {
		printer.observe(client.Transcript().Turns())
	})
	defer unsubscribe()

	panels := &panelPrinter{out: out}
	unsubscribeView := client.SubscribeView(panels.observe)
	defer unsubscribeView()

	var voice *voiceSession
	defer func() {
		if voice != nil {
			client.Voice.Disconnect()
			voice.close()
		}
	}()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/exit" || line == "/quit":
			fmt.Fprintln(out, "bye")
			return nil

		case line == "/new":
			if voice != nil {
				client.Voice.Disconnect()
				voice.close()
				voice = nil
			}
			panels.reset()
			if err := client.NewChat(ctx); err != nil {
				fmt.Fprintf(errOut, "new chat error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "new session %s\n", client.Sessions.SessionID())

		case strings.HasPrefix(line, "/comic"):
			prompt := strings.TrimSpace(strings.TrimPrefix(line, "/comic"))
			if prompt == "" {
				fmt.Fprintln(out, "usage: /comic <prompt>")
				continue
			}
			if err := client.GenerateComic(ctx, prompt); err != nil {
				fmt.Fprintf(errOut, "comic error: %v\n", err)
			}

		case line == "/voice":
			if voice != nil {
				fmt.Fprintln(out, "voice is already running; /stop first")
				continue
			}
			session, err := startVoice(ctx, client, cfg.engine.DefaultVoiceID)
			if err != nil {
				fmt.Fprintf(errOut, "voice error: %v\n", err)
				continue
			}
			voice = session
			fmt.Fprintln(out, "voice connected; /mute to toggle the mic, /stop to hang up")

		case line == "/mute":
			muted, err := client.Voice.ToggleMute()
			if err != nil {
				fmt.Fprintf(errOut, "mute error: %v\n", err)
				continue
			}
			if muted {
				fmt.Fprintln(out, "mic muted")
			} else {
				fmt.Fprintln(out, "mic live")
			}

		case line == "/stop":
			if voice == nil {
				fmt.Fprintln(out, "voice is not running")
				continue
			}
			client.Voice.Disconnect()
			voice.close()
			voice = nil
			fmt.Fprintln(out, "voice disconnected")

		default:
			if err := client.SendMessage(ctx, line); err != nil {
				fmt.Fprintf(errOut, "send error: %v\n", err)
			}
		}
	}
}

func startVoice(ctx context.Context, client *tutor.Client, voiceID string) (*voiceSession, error) {
	mic, err := newMicCapture()
	if err != nil {
		return nil, err
	}
	player, err := newPCMPlayer()
	if err != nil {
		mic.Close()
		return nil, err
	}

	err = client.Voice.Connect(ctx, tutor.VoiceConnectParams{
		VoiceID: voiceID,
		Source:  mic,
		Sink:    player,
	})
	if err != nil {
		mic.Close()
		player.Close()
		return nil, err
	}
	return &voiceSession{mic: mic, player: player}, nil
}

func main() {
	cfg, err := parseCLIConfig(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "tutor-chat: %v\n", err)
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "tutor-chat: %v\n", err)
		os.Exit(1)
	}
}
