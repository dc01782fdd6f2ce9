// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pitchd/internal/config"
	"pitchd/internal/offline"
	"pitchd/internal/pitch"
	"pitchd/pkg/build"
)

// Commands understood by main.
const (
	CommandRun     = "run"
	CommandList    = "list"
	CommandDevices = "devices"
	CommandAnalyze = "analyze"
	CommandVersion = "version"
)

// Options is the parsed command line: the command to execute and the
// configuration it runs with.
type Options struct {
	Command string
	Config  *config.Config

	// analyze
	InputFile string
	JSON      bool
	BlockSize int
}

// runFlags mirror the config fields that can be set from the command line.
// Only flags the user actually passed override the file.
type runFlags struct {
	configPath string
	logLevel   string
	verbose    bool

	device     int
	sampleRate float64
	frames     int
	channels   int
	lowLatency bool

	threshold float64
	minFreq   float64
	maxFreq   float64
	gate      float64
	noVoice   bool

	record    bool
	outputDir string

	wsAddr    string
	udpTarget string
	noMetrics bool
	tui       bool
}

// ParseArgs parses args (without the program name) into Options. It
// returns nil Options when cobra handled the request itself, for example
// --help.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	var (
		f    runFlags
		opts *Options
	)

	// resolve loads the configuration and applies the flags on top.
	resolve := func(cmd *cobra.Command, command string) error {
		cfg, err := config.LoadConfig(f.configPath)
		if err != nil {
			return err
		}
		f.apply(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if opts == nil {
			opts = &Options{}
		}
		opts.Command = command
		opts.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandRun)
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Capture from an input device and stream pitch events (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandRun)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandList)
		},
	}

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Pick an input device and sample rate interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandDevices)
		},
	}

	analyze := &Options{}
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run pitch and voice analysis over a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts = analyze
			opts.InputFile = args[0]
			return resolve(cmd, CommandAnalyze)
		},
	}
	analyzeCmd.Flags().BoolVar(&analyze.JSON, "json", false,
		"Write every pitch event and voice chunk to stdout as JSON lines")
	analyzeCmd.Flags().IntVar(&analyze.BlockSize, "block-size", offline.DefaultBlockSize,
		"Samples pushed per step, as the audio callback would")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts = &Options{Command: CommandVersion}
		},
	}

	rootCmd.AddCommand(runCmd, listCmd, devicesCmd, analyzeCmd, versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "f", "",
		"YAML configuration file (default "+config.DefaultPath+" if present)")
	pf.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error")
	pf.BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")

	// Audio Device Configuration
	pf.IntVarP(&f.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&f.frames, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.IntVarP(&f.channels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to capture, downmixed to mono")
	pf.BoolVarP(&f.lowLatency, "low-latency", "l", false,
		"Use the device's low input latency")

	// Detection
	pf.Float64Var(&f.threshold, "threshold", pitch.DefaultThreshold, "YIN absolute threshold, in (0, 1)")
	pf.Float64Var(&f.minFreq, "min-freq", pitch.DefaultMinFrequency, "Lowest detectable pitch in Hz")
	pf.Float64Var(&f.maxFreq, "max-freq", pitch.DefaultMaxFrequency, "Highest detectable pitch in Hz")
	pf.Float64Var(&f.gate, "gate", 0, "Window RMS below which YIN is skipped, 0 disables the gate")
	pf.BoolVar(&f.noVoice, "no-voice", false, "Disable the voice-quality channel")

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", false,
		"Record the captured mono stream to a WAV file")
	pf.StringVarP(&f.outputDir, "output-dir", "o", config.DefaultRecordingDir,
		"Directory for recordings")

	// Delivery
	pf.StringVar(&f.wsAddr, "ws-addr", config.DefaultWebSocketAddr,
		"WebSocket listen address, empty disables the server")
	pf.StringVar(&f.udpTarget, "udp", "",
		"Send binary pitch packets to host:port")
	pf.BoolVar(&f.noMetrics, "no-metrics", false, "Do not serve Prometheus metrics")
	pf.BoolVarP(&f.tui, "tui", "t", false, "Show the live pitch meter")

	// cobra falls back to os.Args for a nil slice.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return opts, nil
}

// apply copies every flag the user set into cfg.
func (f *runFlags) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}

	set("log-level", func() { cfg.LogLevel = strings.ToLower(f.logLevel) })
	if f.verbose {
		cfg.LogLevel = "debug"
	}

	set("device", func() { cfg.Audio.InputDevice = f.device })
	set("sample-rate", func() { cfg.Audio.SampleRate = f.sampleRate })
	set("frames-per-buffer", func() { cfg.Audio.FramesPerBuffer = f.frames })
	set("channels", func() { cfg.Audio.InputChannels = f.channels })
	set("low-latency", func() { cfg.Audio.LowLatency = f.lowLatency })

	set("threshold", func() { cfg.Pitch.Threshold = f.threshold })
	set("min-freq", func() { cfg.Pitch.MinFrequency = f.minFreq })
	set("max-freq", func() { cfg.Pitch.MaxFrequency = f.maxFreq })
	set("gate", func() { cfg.Pitch.SilenceThreshold = f.gate })
	set("no-voice", func() { cfg.Voice.Enabled = !f.noVoice })

	set("record", func() { cfg.Recording.Enabled = f.record })
	set("output-dir", func() { cfg.Recording.OutputDir = f.outputDir })

	set("ws-addr", func() {
		cfg.Transport.WebSocketAddr = f.wsAddr
		cfg.Transport.WebSocketEnabled = f.wsAddr != ""
		if f.wsAddr == "" {
			cfg.Metrics.Enabled = false
		}
	})
	set("udp", func() {
		cfg.Transport.UDPTargetAddress = f.udpTarget
		cfg.Transport.UDPEnabled = f.udpTarget != ""
	})
	set("no-metrics", func() { cfg.Metrics.Enabled = !f.noMetrics })
	cfg.TUIMode = f.tui
}
