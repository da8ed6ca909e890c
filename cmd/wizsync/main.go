// Command wizsync visualizes audio on WiZ smart lights: it analyzes an audio
// stream frame by frame and drives the lights' color and brightness over the
// local UDP control protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/myselfshravan/wiz-hack/internal/config"
	"github.com/myselfshravan/wiz-hack/internal/health"
	"github.com/myselfshravan/wiz-hack/internal/observe"
	"github.com/myselfshravan/wiz-hack/internal/pipeline"
	"github.com/myselfshravan/wiz-hack/internal/source"
	"github.com/myselfshravan/wiz-hack/internal/ui"
	"github.com/myselfshravan/wiz-hack/internal/wiz"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	filePath := flag.String("file", "", "audio file to play and visualize (wav, mp3, flac, ogg)")
	useStdin := flag.Bool("stdin", false, "read raw s16le mono PCM from stdin (e.g. piped from arecord or ffmpeg)")
	noPlay := flag.Bool("no-play", false, "with -file, skip speaker playback and run against the wall clock")
	lightsFlag := flag.String("lights", "", "comma-separated light addresses, overrides the config")
	modeFlag := flag.String("mode", "", "visual mode, overrides the config")
	discoverFlag := flag.Bool("discover", false, "probe the local network for lights")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	haveConfigFile := true
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
			haveConfigFile = false
		} else {
			fmt.Fprintf(os.Stderr, "wizsync: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if !haveConfigFile {
		slog.Warn("config file not found, using defaults", "path", *configPath)
	}

	// ── Flag overrides ────────────────────────────────────────────────────────
	if *modeFlag != "" {
		cfg.Visual.Mode = *modeFlag
	}
	if *lightsFlag != "" {
		cfg.Lights.Devices = strings.Split(*lightsFlag, ",")
		for i := range cfg.Lights.Devices {
			cfg.Lights.Devices[i] = strings.TrimSpace(cfg.Lights.Devices[i])
		}
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTel(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Lights ────────────────────────────────────────────────────────────────
	devices := slices.Clone(cfg.Lights.Devices)
	if *discoverFlag || cfg.Lights.Discover {
		slog.Info("probing for lights…")
		found, err := wiz.Discover(ctx)
		if err != nil {
			slog.Warn("discovery incomplete", "err", err)
		}
		for _, addr := range found {
			if !slices.Contains(devices, addr) {
				devices = append(devices, addr)
			}
		}
		slog.Info("discovery finished", "found", len(found))
	}
	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "wizsync: no lights — configure lights.devices, pass -lights, or try -discover")
		return 1
	}

	disp, err := wiz.NewDispatcher(devices,
		wiz.WithClientOptions(wiz.WithMaxRate(cfg.Lights.MaxRate)),
	)
	if err != nil {
		slog.Error("failed to connect lights", "err", err)
		return 1
	}
	defer func() {
		if err := disp.Close(); err != nil {
			slog.Warn("light close error", "err", err)
		}
	}()

	// ── Audio source ──────────────────────────────────────────────────────────
	var src source.Source
	sampleRate := cfg.Audio.SampleRate
	switch {
	case *filePath != "":
		var opts []source.FileOption
		if !*noPlay {
			opts = append(opts, source.WithPlayback())
		}
		fs, err := source.OpenFile(*filePath, cfg.Audio.FrameSize, opts...)
		if err != nil {
			slog.Error("failed to open audio file", "path", *filePath, "err", err)
			return 1
		}
		defer fs.Close()
		sampleRate = fs.SampleRate()
		src = fs
		slog.Info("visualizing file", "path", *filePath, "sample_rate", sampleRate, "playback", !*noPlay)
	case *useStdin:
		ps, err := source.NewPCM(os.Stdin, cfg.Audio.FrameSize)
		if err != nil {
			slog.Error("failed to open stdin source", "err", err)
			return 1
		}
		src = ps
		slog.Info("visualizing stdin PCM", "sample_rate", sampleRate)
	default:
		fmt.Fprintln(os.Stderr, "wizsync: pass -file <audio file> or -stdin")
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	mc, err := cfg.MapperConfig(len(devices))
	if err != nil {
		slog.Error("invalid visual configuration", "err", err)
		return 1
	}
	p, err := pipeline.New(pipeline.Config{
		SampleRate:     sampleRate,
		FrameSize:      cfg.Audio.FrameSize,
		GainDecay:      cfg.Audio.GainDecay,
		FluxWindow:     cfg.Analysis.FluxWindow,
		FluxMultiplier: cfg.Analysis.FluxMultiplier,
		Visual:         mc,
	}, src, disp)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	// ── Metrics and health endpoints ──────────────────────────────────────────
	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(p.Status, health.PipelineRunning(p)).Register(mux)
		go func() {
			slog.Info("metrics endpoint up", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics endpoint failed", "err", err)
			}
		}()
	}

	printStartupSummary(cfg, devices, mc.Mode.String(), sampleRate)

	if err := p.Start(ctx); err != nil {
		slog.Error("failed to start pipeline", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if haveConfigFile {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				level.Set(d.NewLogLevel.SlogLevel())
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.VisualChanged {
				mc, err := new.MapperConfig(len(devices))
				if err != nil {
					slog.Warn("ignoring visual change", "err", err)
				} else if err := p.Reconfigure(mc); err != nil {
					slog.Warn("reconfigure failed", "err", err)
				}
			}
			if d.RestartRequired {
				slog.Warn("some changed settings need a restart to apply")
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Terminal UI ───────────────────────────────────────────────────────────
	if cfg.UI.Enabled {
		go func() {
			if err := ui.New(os.Stdout).Run(ctx, p); err != nil {
				slog.Warn("ui stopped", "err", err)
			}
		}()
	}

	slog.Info("running — press Ctrl+C to stop")

	if err := p.Wait(); err != nil {
		slog.Error("pipeline error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, devices []string, mode string, sampleRate int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          wizsync — summary            ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Mode", mode)
	printRow("Lights", fmt.Sprintf("%d", len(devices)))
	printRow("Sample rate", fmt.Sprintf("%d Hz", sampleRate))
	printRow("Frame size", fmt.Sprintf("%d", cfg.Audio.FrameSize))
	if cfg.Server.MetricsAddr != "" {
		printRow("Metrics", cfg.Server.MetricsAddr)
	} else {
		printRow("Metrics", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", key, value)
}
