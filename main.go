// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pitchd/cmd"
	"pitchd/internal/analysis"
	"pitchd/internal/audio"
	"pitchd/internal/config"
	applog "pitchd/internal/log"
	"pitchd/internal/observe"
	"pitchd/internal/offline"
	"pitchd/internal/transport"
	"pitchd/internal/transport/udp"
	"pitchd/internal/tui"
	"pitchd/pkg/build"
)

// meterQueueDepth bounds the messages waiting for the TUI to redraw.
const meterQueueDepth = 64

// main is the entry point for the pitch detection daemon.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Execute one-off commands if requested
//   - Build the delivery and analysis pipelines
//
// 2. Concurrent Phase (Hot Path):
//   - Start the audio engine
//   - Start recording if enabled
//   - Run the meter or wait for a signal
//
// 3. Shutdown Phase (Cold Path):
//   - Stop capture and finalize the recording
//   - Drain and close transports
//   - Flush telemetry
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Version, commit and build time; missing values are not fatal.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
	if opts == nil {
		return
	}

	if level, ok := applog.ParseLevel(opts.Config.LogLevel); ok {
		applog.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, opts); err != nil {
		applog.Errorf("%s: %v", opts.Command, err)
		stop()
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts *cmd.Options) error {
	switch opts.Command {
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildFlags().String())
		return nil
	case cmd.CommandList:
		return listDevices()
	case cmd.CommandDevices:
		return pickDevice()
	case cmd.CommandAnalyze:
		return analyzeFile(ctx, opts)
	default:
		return run(ctx, opts.Config)
	}
}

func listDevices() error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(os.Stdout)
}

func pickDevice() error {
	sel, ok, err := tui.StartDeviceListUI()
	if err != nil || !ok {
		return err
	}
	fmt.Printf("Selected %q\n\n", sel.DeviceName)
	fmt.Printf("Command line:\n  %s -d %d -s %.0f\n\n", build.GetBuildFlags().Name, sel.DeviceID, sel.SampleRate)
	fmt.Printf("%s:\n  audio:\n    input_device: %d\n    sample_rate: %.0f\n", config.DefaultPath, sel.DeviceID, sel.SampleRate)
	return nil
}

func analyzeFile(ctx context.Context, opts *cmd.Options) error {
	samples, sampleRate, err := audio.ReadWAVMono(opts.InputFile)
	if err != nil {
		return err
	}

	aopts := offline.Options{BlockSize: opts.BlockSize, Voice: opts.Config.Voice.Enabled}
	report := os.Stdout
	if opts.JSON {
		aopts.Events = os.Stdout
		report = os.Stderr
	}

	summary, err := offline.Analyze(ctx, samples, sampleRate, opts.Config, aopts)
	if err != nil {
		return err
	}
	fmt.Fprintf(report, "File:            %s\n", opts.InputFile)
	summary.Print(report)
	return nil
}

// run captures from the configured device until ctx is cancelled or the
// meter is closed.
func run(ctx context.Context, cfg *config.Config) error {
	// Limit OS threads to optimize for real-time audio processing:
	// - One thread dedicated to audio engine (time-critical)
	// - One thread for delivery, voice analysis and UI
	runtime.GOMAXPROCS(2)

	if cfg.TUIMode {
		// The meter owns the terminal.
		f, err := tea.LogToFile(build.GetBuildFlags().Name+".log", "")
		if err != nil {
			return err
		}
		defer f.Close()
		applog.SetOutput(f)
	}

	info := build.GetBuildFlags()
	provider, err := observe.InitProvider(observe.ProviderConfig{ServiceName: info.Name, ServiceVersion: info.Version})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			applog.Warnf("metrics: %v", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider())
	if err != nil {
		return err
	}

	// Delivery
	var (
		transports []transport.Transport
		ws         *transport.WebSocketTransport
	)
	if cfg.Transport.WebSocketEnabled {
		handlers := map[string]http.Handler{}
		if cfg.Metrics.Enabled {
			handlers[cfg.Metrics.Path] = provider.Handler()
		}
		ws, err = transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr, handlers)
		if err != nil {
			return err
		}
		metrics.TrackDrops("websocket", ws)
		transports = append(transports, ws)
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			closeAll(transports)
			return err
		}
		publisher, err := udp.NewPublisher(cfg.Transport.UDPSendInterval, cfg.Transport.UDPQueueDepth, sender)
		if err != nil {
			sender.Close()
			closeAll(transports)
			return err
		}
		publisher.Start()
		metrics.TrackDrops("udp", publisher)
		transports = append(transports, publisher)
	}
	var meter *transport.ChannelTransport
	if cfg.TUIMode {
		meter = transport.NewChannelTransport(meterQueueDepth)
		metrics.TrackDrops("meter", meter)
		transports = append(transports, meter)
	} else if applog.Enabled(applog.LevelDebug) {
		transports = append(transports, transport.NewLoggingTransport())
	}
	out := transport.Multi(transports...)
	defer func() {
		if err := out.Close(); err != nil {
			applog.Warnf("transport: %v", err)
		}
	}()

	sink := observe.NewMetricsSink(metrics, transport.EventSink{Transport: out})

	// Voice-quality channel: the aggregator runs on the audio thread and
	// hands whole chunks to a worker.
	var voice analysis.AudioProcessor
	if cfg.Voice.Enabled {
		vc := cfg.VoiceAnalysis()
		analyzer, err := analysis.NewVoiceAnalyzer(vc, out)
		if err != nil {
			return err
		}
		async := analysis.NewAsyncChunkHandler(observe.CountChunks(metrics, analyzer), vc.ChunkSize, cfg.Voice.QueueDepth)
		defer async.Close()
		metrics.TrackDrops("voice", async)
		aggregator, err := analysis.NewChunkAggregator(vc.ChunkSize, async)
		if err != nil {
			return err
		}
		voice = aggregator
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	engine, err := audio.NewEngine(cfg, sink, voice)
	if err != nil {
		return err
	}
	if ws != nil {
		// Clients retune the detector with the same socket they listen on.
		ws.HandleMessages(engine.HandleControl)
		defer ws.HandleMessages(nil)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// CRITICAL: Start of real-time audio processing
	// PortAudio begins calling the callback once the stream starts.
	if err := engine.StartInputStream(); err != nil {
		return err
	}

	var recording string
	if cfg.Recording.Enabled {
		recording = audio.RecordingPath(cfg.Recording.OutputDir, time.Now())
		if err := engine.StartRecording(recording); err != nil {
			engine.Close()
			return err
		}
	}

	var runErr error
	if meter != nil {
		runErr = tui.RunMeter(ctx, meter.Messages(), meter.Done(), info.Name)
	} else {
		applog.Infof("%s: Listening, press Ctrl+C to stop", info.Name)
		<-ctx.Done()
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := engine.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("closing audio engine: %w", err))
	}
	if recording != "" {
		fmt.Printf("\nRecording saved to: %s\n", recording)
	}
	return runErr
}

func closeAll(ts []transport.Transport) {
	for _, t := range ts {
		t.Close()
	}
}
