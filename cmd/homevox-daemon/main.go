package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"homevox/internal/app"
	"homevox/internal/audio"
	"homevox/internal/capture"
	"homevox/internal/config"
	"homevox/internal/conversation"
	"homevox/internal/device"
	"homevox/internal/events"
	"homevox/internal/extract"
	"homevox/internal/hub"
	"homevox/internal/ipc"
	"homevox/internal/notify"
	"homevox/internal/presentation"
	"homevox/internal/proxy"
	"homevox/internal/speech"
	"homevox/internal/tts"
	"homevox/pkg/protocol"
	"homevox/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// PulseAudio names of our own playback streams, left alone when ducking.
var selfStreams = []string{"eSpeak", "espeak-ng", "homevox"}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "YAML config file")
	flags := config.RegisterFlags(cli.CommandLine)
	cli.Parse()

	setupLogging("info")

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to load env file", "path", *envFile, "err", err)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)
	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, err := newExtractor(cfg.Remote)
	if err != nil {
		log.Error("Failed to set up extraction", "err", err)
		os.Exit(1)
	}
	log.Debug("Loaded extractor", "backend", cfg.Remote.Backend)

	whisper, err := stt.NewTranscriber(cfg.Recognition.Model, stt.Options{
		Language: cfg.Recognition.Language,
		Threads:  cfg.Recognition.Threads,
	})
	if err != nil {
		log.Error("Failed to init whisper", "model", cfg.Recognition.Model, "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper")

	open, closeAudio, err := newOpener(cfg.Recognition.Input)
	if err != nil {
		log.Error("Failed to init audio input", "input", cfg.Recognition.Input, "err", err)
		os.Exit(1)
	}
	defer closeAudio()

	rec := capture.NewWhisperRecognizer(open, whisper, capture.Config{
		Language:  cfg.Recognition.Language,
		Threshold: cfg.Recognition.Threshold,
	})

	synth, err := tts.NewEspeak()
	if err != nil {
		log.Error("Failed to init espeak", "err", err)
		os.Exit(1)
	}

	speechCfg := speech.DefaultConfig()
	if len(cfg.Speech.Voices) > 0 {
		speechCfg.Preferences = cfg.Speech.Voices
	}
	speechCfg.Pitch = cfg.Speech.Pitch
	speechCfg.Rate = cfg.Speech.Rate
	speechCfg.Settle = cfg.Speech.Settle

	out := speech.NewOutput(synth, speechCfg)
	if cfg.Speech.Muted {
		out.SetEnabled(false)
	}
	if cfg.Speech.Duck {
		ducker := audio.NewDucker(selfStreams, cfg.Speech.DuckFactor, 5, 200*time.Millisecond)
		out.OnSpeakingChange(ducker.Hook(ctx))
	}

	bus := events.New()
	exec := device.NewExecutor(device.DefaultState())

	a := app.New(app.Deps{
		Recognizer: rec,
		Extractor:  extractor,
		Executor:   exec,
		Output:     out,
		Events:     bus,
	}, app.Config{
		SilenceWindow: cfg.Recognition.SilenceWindow,
		RestartDelay:  cfg.Recognition.RestartDelay,
		TurnTimeout:   cfg.Remote.Timeout,
	})

	_ = bus.Subscribe(events.Device, func(st device.State, changes []device.Change) {
		log.Info("Device state changed", "light", st.LivingRoomLight, "locked", st.FrontDoorLocked,
			"thermostat", st.ThermostatTemp, "changes", len(changes))
	})
	_ = bus.Subscribe(events.Message, func(m conversation.Message) {
		log.Info("Message", "role", m.Role, "kind", m.Kind, "text", m.Text)
	})

	if cfg.Speech.Cue != "" {
		cue, err := notify.LoadCue(cfg.Speech.Cue)
		if err != nil {
			log.Warn("Listen cue disabled", "path", cfg.Speech.Cue, "err", err)
		} else {
			_ = bus.Subscribe(events.Listening, cue.OnListening)
		}
	}

	srv, err := ipc.Listen(cfg.Socket, func(msg ipc.ControlMessage) (any, error) {
		st, err := a.Control(msg.Cmd, msg.Text)
		return st, err
	})
	if err != nil {
		log.Error("Failed ipc server", "socket", cfg.Socket, "err", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return srv.Serve(ctx) })

	if cfg.Presentation.URL != "" {
		startPresentation(ctx, g, cfg.Presentation, a)
	}
	if cfg.Hub.URL != "" {
		startHub(ctx, g, cfg.Hub, bus)
	}

	if cfg.Recognition.AutoListen {
		a.Recognition().Start()
	}

	log.Info("Boot up - successful", "socket", srv.Path())

	if err := g.Wait(); err != nil {
		log.Error("Stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down")
}

func setupLogging(level string) {
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[level],
		TimeFormat: time.TimeOnly,
	})))
}

func newExtractor(cfg config.RemoteConfig) (conversation.Extractor, error) {
	if cfg.Backend == config.BackendOff {
		log.Warn("Remote extraction is off")
		return extract.Disabled{}, nil
	}

	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	session := extract.NewSession(cfg.MaxTurns)

	if cfg.Backend == config.BackendCompat {
		return extract.NewCompat(cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient, session), nil
	}

	if cfg.APIKey == "" {
		log.Warn("OPENAI_API_KEY not set, remote extraction disabled")
		return extract.Disabled{}, nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return extract.NewOpenAI(openai.NewClient(opts...), cfg.Model, session), nil
}

// newOpener returns the per-session audio source factory. A file is played
// once in real time; later sessions hear silence.
func newOpener(input string) (capture.Opener, func(), error) {
	if input == config.InputMic {
		if err := audio.Init(); err != nil {
			return nil, nil, fmt.Errorf("init portaudio: %w", err)
		}
		open := func() (audio.Source, error) {
			mic, err := audio.OpenMic(audio.FrameSize)
			if err != nil {
				return nil, err
			}
			return mic, nil
		}
		return open, audio.Terminate, nil
	}

	pcm, err := audio.DecodeFile(input)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", input, err)
	}
	log.Info("Loaded audio file", "path", input, "seconds", audio.FrameDuration(len(pcm)).Seconds())

	var played atomic.Bool
	open := func() (audio.Source, error) {
		if played.CompareAndSwap(false, true) {
			return audio.NewFileSource(pcm, true), nil
		}
		return audio.NewSilence(true), nil
	}
	return open, func() {}, nil
}

func startPresentation(ctx context.Context, g *errgroup.Group, cfg config.PresentationConfig, a *app.App) {
	br, err := presentation.Dial(ctx, cfg.URL, cfg.Name, cfg.Peer)
	if err != nil {
		log.Warn("UI bus unavailable", "url", cfg.URL, "err", err)
		return
	}
	if err := br.Attach(a.Events()); err != nil {
		log.Warn("Failed to attach UI bus", "err", err)
		br.Close()
		return
	}

	g.Go(func() error {
		defer br.Close()
		err := br.Serve(ctx, func(cmd, text string) error {
			_, err := a.Control(cmd, text)
			return err
		})
		if err != nil {
			log.Warn("UI bus disconnected", "err", err)
		}
		return nil
	})
}

func startHub(ctx context.Context, g *errgroup.Group, cfg config.HubConfig, bus *events.Bus) {
	link, err := protocol.Dial(ctx, protocol.Config{
		Shard: cfg.Shard,
		URL:   cfg.URL,
		OnFrame: func(f *protocol.Frame) {
			log.Debug("Unsolicited hub frame", "frame", f.String())
		},
	})
	if err != nil {
		log.Warn("Device hub unavailable", "url", cfg.URL, "err", err)
		return
	}

	mirror := hub.NewMirror(link, cfg.Target, 0)
	if err := bus.Subscribe(events.Device, mirror.OnDevice); err != nil {
		log.Warn("Failed to attach hub mirror", "err", err)
		link.Close()
		return
	}

	g.Go(func() error { return link.Run(ctx) })
	g.Go(func() error { return mirror.Run(ctx) })
}
