// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "pitchd/internal/log"
)

const wavFormatPCM = 1

var ErrAlreadyRecording = errors.New("already recording")

// RecordingPath returns a timestamped file name inside dir.
func RecordingPath(dir string, t time.Time) string {
	return filepath.Join(dir, "pitchd-"+t.Format("20060102-150405")+".wav")
}

// StartRecording writes the mono stream to a new WAV file at the engine's
// sample rate and the configured bit depth (16 or 24). Missing parent
// directories are created.
func (e *Engine) StartRecording(filename string) error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	if e.isRecording.Load() {
		return ErrAlreadyRecording
	}

	bits := e.config.Recording.BitDepth
	if bits != 16 && bits != 24 {
		return fmt.Errorf("unsupported recording bit depth %d", bits)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	rate := int(e.Detection().SampleRate)
	e.outputFile = file
	e.wavEncoder = wav.NewEncoder(file, rate, bits, 1, wavFormatPCM)
	e.sampleBuf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, e.frames),
		SourceBitDepth: bits,
	}
	e.sampleScale = float32(int(1)<<(bits-1) - 1)
	e.writeFailures = 0

	e.isRecording.Store(true)
	applog.Infof("Engine: Recording %d-bit WAV to %s", bits, filename)
	return nil
}

// StopRecording finalizes the WAV header and closes the file. It is a no-op
// when not recording.
func (e *Engine) StopRecording() error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	if e.wavEncoder == nil {
		return nil
	}
	e.isRecording.Store(false)

	var errs []error
	if err := e.wavEncoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finalize WAV: %w", err))
	}
	if err := e.outputFile.Close(); err != nil {
		errs = append(errs, err)
	}
	applog.Infof("Engine: Recording saved to %s", e.outputFile.Name())
	e.wavEncoder = nil
	e.outputFile = nil
	return errors.Join(errs...)
}

// IsRecording reports whether captured audio is being written.
func (e *Engine) IsRecording() bool {
	return e.isRecording.Load()
}

// writeRecording converts one mono block and appends it to the file. If the
// control side holds the lock the block is skipped rather than waited for.
func (e *Engine) writeRecording(mono []float32) {
	if !e.recordMu.TryLock() {
		return
	}
	defer e.recordMu.Unlock()
	if e.wavEncoder == nil {
		return
	}

	data := e.sampleBuf.Data[:len(mono)]
	for i, s := range mono {
		s = max(-1, min(s, 1))
		data[i] = int(s * e.sampleScale)
	}
	e.sampleBuf.Data = data

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		e.writeFailures++
		applog.Errorf("Engine: Error writing to WAV file: %v", err)
		if e.writeFailures >= DefaultMaxConsecutiveWriteFailures {
			applog.Errorf("Engine: Recording disabled after %d consecutive write failures", e.writeFailures)
			e.isRecording.Store(false)
		}
		return
	}
	e.writeFailures = 0
}

// ReadWAVMono decodes an integer PCM WAV file, averages its channels and
// scales samples to [-1, 1). It returns the samples and the sample rate.
func ReadWAVMono(path string) ([]float32, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, 0, fmt.Errorf("%s: unsupported WAV format %d, want integer PCM", path, d.WavAudioFormat)
	}
	bits := int(d.BitDepth)
	if bits != 16 && bits != 24 && bits != 32 {
		return nil, 0, fmt.Errorf("%s: unsupported bit depth %d", path, bits)
	}
	channels := int(d.NumChans)
	if channels < 1 || d.SampleRate == 0 {
		return nil, 0, fmt.Errorf("%s: missing format information", path)
	}

	scale := 1 / float64(int64(1)<<(bits-1))
	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := range mono {
		var sum int
		for _, s := range buf.Data[i*channels : (i+1)*channels] {
			sum += s
		}
		mono[i] = float32(float64(sum) / float64(channels) * scale)
	}
	return mono, float64(d.SampleRate), nil
}
