// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pitchd/pkg/utils"
)

func TestRecordingPath(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got, want := RecordingPath("takes", at), filepath.Join("takes", "pitchd-20260102-030405.wav"); got != want {
		t.Errorf("RecordingPath = %q, want %q", got, want)
	}
}

func TestRecordingRoundTrip(t *testing.T) {
	tests := []struct {
		desc     string
		bits     int
		channels int
	}{
		{"16-bit mono", 16, 1},
		{"24-bit mono", 24, 1},
		{"16-bit from stereo capture", 16, 2},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := testConfig(tt.channels)
			cfg.Recording.BitDepth = tt.bits
			e := newTestEngine(t, cfg, nil, nil)

			path := filepath.Join(t.TempDir(), "nested", "take.wav")
			if err := e.StartRecording(path); err != nil {
				t.Fatalf("StartRecording: %v", err)
			}
			if !e.IsRecording() {
				t.Fatal("engine not recording")
			}
			if err := e.StartRecording(path); !errors.Is(err, ErrAlreadyRecording) {
				t.Errorf("second StartRecording = %v, want ErrAlreadyRecording", err)
			}

			mono := utils.GenerateSineWave(10*testFrameSize, testSampleRate, 220)
			feed(e, interleave(mono, tt.channels))

			if err := e.StopRecording(); err != nil {
				t.Fatalf("StopRecording: %v", err)
			}
			if e.IsRecording() {
				t.Error("still recording after StopRecording")
			}
			if err := e.StopRecording(); err != nil {
				t.Errorf("StopRecording when idle: %v", err)
			}

			got, rate, err := ReadWAVMono(path)
			if err != nil {
				t.Fatalf("ReadWAVMono: %v", err)
			}
			if rate != testSampleRate {
				t.Errorf("sample rate = %f, want %f", rate, testSampleRate)
			}
			if len(got) != len(mono) {
				t.Fatalf("read %d samples, want %d", len(got), len(mono))
			}
			tolerance := 2 / math.Exp2(float64(tt.bits-1))
			for i := range mono {
				if math.Abs(float64(got[i]-mono[i])) > tolerance {
					t.Fatalf("sample %d = %f, want %f", i, got[i], mono[i])
				}
			}
		})
	}
}

func TestStartRecordingErrors(t *testing.T) {
	cfg := testConfig(1)
	cfg.Recording.BitDepth = 8
	e := newTestEngine(t, cfg, nil, nil)
	if err := e.StartRecording(filepath.Join(t.TempDir(), "take.wav")); err == nil {
		t.Error("accepted 8-bit recording")
	}

	e = newTestEngine(t, testConfig(1), nil, nil)
	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, nil, 0o644)
	if err := e.StartRecording(filepath.Join(blocker, "take.wav")); err == nil {
		t.Error("recorded below a regular file")
	}
	if e.IsRecording() {
		t.Error("recording flag set after a failed start")
	}
}

func TestRecordingStopsAfterWriteFailures(t *testing.T) {
	e := newTestEngine(t, testConfig(1), nil, nil)
	if err := e.StartRecording(filepath.Join(t.TempDir(), "take.wav")); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	// Every write to a closed file fails.
	e.outputFile.Close()
	block := make([]float32, testFrameSize)
	for range DefaultMaxConsecutiveWriteFailures - 1 {
		e.processInputStream(block)
	}
	if !e.IsRecording() {
		t.Fatal("recording stopped too early")
	}
	e.processInputStream(block)
	if e.IsRecording() {
		t.Error("recording still enabled after repeated write failures")
	}

	if err := e.StopRecording(); err == nil {
		t.Error("StopRecording on a closed file returned no error")
	}
	if e.wavEncoder != nil || e.outputFile != nil {
		t.Error("recording state not cleared")
	}
}

func TestCloseStopsRecording(t *testing.T) {
	e := newTestEngine(t, testConfig(1), nil, nil)
	path := filepath.Join(t.TempDir(), "take.wav")
	if err := e.StartRecording(path); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	feed(e, make([]float32, 4*testFrameSize))

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got, _, err := ReadWAVMono(path); err != nil || len(got) != 4*testFrameSize {
		t.Errorf("ReadWAVMono = %d samples, %v", len(got), err)
	}
}

func writeStereoWAV(t *testing.T, path string, left, right int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 22050, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 22050},
		Data:           []int{left, right, left, right, left, right},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReadWAVMono(t *testing.T) {
	dir := t.TempDir()

	stereo := filepath.Join(dir, "stereo.wav")
	writeStereoWAV(t, stereo, 1000, 3000)
	got, rate, err := ReadWAVMono(stereo)
	if err != nil {
		t.Fatalf("ReadWAVMono: %v", err)
	}
	if rate != 22050 || len(got) != 3 {
		t.Fatalf("got %d samples at %f Hz, want 3 at 22050", len(got), rate)
	}
	if want := float32(2000.0 / 32768); got[0] != want {
		t.Errorf("downmixed sample = %f, want %f", got[0], want)
	}

	text := filepath.Join(dir, "notes.txt")
	os.WriteFile(text, []byte("not a wav file at all"), 0o644)

	for _, path := range []string{filepath.Join(dir, "missing.wav"), text} {
		if _, _, err := ReadWAVMono(path); err == nil {
			t.Errorf("ReadWAVMono(%s) returned no error", filepath.Base(path))
		}
	}
}
