// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pitchd/internal/config"
)

func parse(t *testing.T, args ...string) *Options {
	t.Helper()
	opts, err := ParseArgs(args)
	if err != nil {
		t.Fatalf("ParseArgs(%q): %v", args, err)
	}
	if opts == nil {
		t.Fatalf("ParseArgs(%q) returned no options", args)
	}
	return opts
}

func TestParseArgsCommands(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		args []string
		want string
	}{
		{nil, CommandRun},
		{[]string{"run"}, CommandRun},
		{[]string{"list"}, CommandList},
		{[]string{"devices"}, CommandDevices},
		{[]string{"analyze", "take.wav"}, CommandAnalyze},
		{[]string{"version"}, CommandVersion},
	}
	for _, tt := range tests {
		if got := parse(t, tt.args...).Command; got != tt.want {
			t.Errorf("ParseArgs(%q).Command = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseArgsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := parse(t).Config
	want := config.Default()
	if cfg.Audio != want.Audio || cfg.Pitch != want.Pitch || cfg.Transport != want.Transport {
		t.Errorf("defaults changed by flag parsing:\n got %+v\nwant %+v", cfg, want)
	}
	if cfg.TUIMode || cfg.Recording.Enabled {
		t.Error("optional modes enabled by default")
	}
}

func TestParseArgsRunFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := parse(t, "run", "-d", "2", "-s", "48000", "-b", "256", "-c", "2", "-l",
		"--threshold", "0.15", "--min-freq", "100", "--max-freq", "800", "--gate", "0.02",
		"--no-voice", "-r", "-o", "takes", "--udp", "127.0.0.1:9999", "--tui", "-v").Config

	if cfg.Audio != (config.AudioConfig{InputDevice: 2, SampleRate: 48000, FramesPerBuffer: 256, InputChannels: 2, LowLatency: true}) {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Pitch.Threshold != 0.15 || cfg.Pitch.MinFrequency != 100 || cfg.Pitch.MaxFrequency != 800 || cfg.Pitch.SilenceThreshold != 0.02 {
		t.Errorf("pitch = %+v", cfg.Pitch)
	}
	if cfg.Voice.Enabled || !cfg.Recording.Enabled || cfg.Recording.OutputDir != "takes" {
		t.Errorf("voice enabled=%v recording=%+v", cfg.Voice.Enabled, cfg.Recording)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "127.0.0.1:9999" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if !cfg.TUIMode || cfg.LogLevel != "debug" {
		t.Errorf("tui=%v log level=%q", cfg.TUIMode, cfg.LogLevel)
	}
}

func TestParseArgsDisableWebSocket(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := parse(t, "--ws-addr", "").Config
	if cfg.Transport.WebSocketEnabled || cfg.Metrics.Enabled {
		t.Errorf("websocket=%v metrics=%v, want both off", cfg.Transport.WebSocketEnabled, cfg.Metrics.Enabled)
	}
}

func TestParseArgsAnalyze(t *testing.T) {
	t.Chdir(t.TempDir())

	opts := parse(t, "analyze", "take.wav", "--json", "--block-size", "256", "--no-voice")
	if opts.InputFile != "take.wav" || !opts.JSON || opts.BlockSize != 256 {
		t.Errorf("analyze options = %+v", opts)
	}
	if opts.Config.Voice.Enabled {
		t.Error("--no-voice ignored")
	}

	if opts := parse(t, "analyze", "other.wav"); opts.JSON || opts.BlockSize != 128 {
		t.Errorf("analyze defaults = %+v", opts)
	}
}

func TestParseArgsConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "live.yaml")
	os.WriteFile(path, []byte("audio:\n  sample_rate: 22050\n  input_device: 3\ntransport:\n  udp_send_interval: 20ms\n"), 0o644)

	cfg := parse(t, "--config", path, "-s", "16000").Config
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("flag did not override the file: %g", cfg.Audio.SampleRate)
	}
	if cfg.Audio.InputDevice != 3 || cfg.Transport.UDPSendInterval != 20*time.Millisecond {
		t.Errorf("file values lost: %+v %+v", cfg.Audio, cfg.Transport)
	}
}

func TestParseArgsHandledByCobra(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, args := range [][]string{{"--help"}, {"--version"}} {
		opts, err := ParseArgs(args)
		if err != nil || opts != nil {
			t.Errorf("ParseArgs(%q) = %+v, %v; want nil, nil", args, opts, err)
		}
	}
}

func TestParseArgsErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		desc   string
		args   []string
		substr string
	}{
		{"Threshold out of range", []string{"--threshold", "2"}, "invalid configuration"},
		{"Missing WAV file", []string{"analyze"}, "accepts 1 arg"},
		{"Unknown flag", []string{"--bogus"}, "unknown flag"},
		{"Missing config file", []string{"-f", "nope.yaml"}, "failed to read config file"},
		{"Bad UDP target", []string{"--udp", "nowhere"}, "udp_target_address"},
		{"Unexpected argument", []string{"run", "extra"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("ParseArgs(%q) = %v, want error containing %q", tt.args, err, tt.substr)
			}
		})
	}
}
