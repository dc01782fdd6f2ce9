// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// VoiceBands splits the speech spectrum into the regions that carry the
// fundamental, the first formants, the upper formants and sibilance.
var VoiceBands = []FrequencyBand{
	{Name: "low", LowHz: 0, HighHz: 500},
	{Name: "lowMid", LowHz: 500, HighHz: 1500},
	{Name: "mid", LowHz: 1500, HighHz: 3000},
	{Name: "presence", LowHz: 3000, HighHz: 6000},
	{Name: "air", LowHz: 6000, HighHz: math.Inf(1)},
}

// BandEnergyProcessor reduces the latest spectrum of a SpectrumProvider to
// the share of total power falling into each band.
type BandEnergyProcessor struct {
	provider SpectrumProvider
	bands    []FrequencyBand
	binBand  []int     // Band index per FFT bin, -1 when no band covers it.
	power    []float64 // Copy of the provider spectrum.
}

// NewBandEnergyProcessor maps every FFT bin of provider onto bands once.
func NewBandEnergyProcessor(provider SpectrumProvider, bands []FrequencyBand) (*BandEnergyProcessor, error) {
	if provider == nil {
		return nil, fmt.Errorf("band energy processor requires a spectrum provider")
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("band energy processor requires at least one band")
	}

	bins := provider.GetFFTSize()/2 + 1
	binBand := make([]int, bins)
	for k := range binBand {
		binBand[k] = -1
		f := provider.GetFrequencyForBin(k)
		for i, band := range bands {
			if f >= band.LowHz && f < band.HighHz {
				binBand[k] = i
				break
			}
		}
	}

	return &BandEnergyProcessor{
		provider: provider,
		bands:    bands,
		binBand:  binBand,
		power:    make([]float64, bins),
	}, nil
}

// Bands returns the configured bands.
func (p *BandEnergyProcessor) Bands() []FrequencyBand {
	return p.bands
}

// Compute writes the relative energy of each band into dest (len(dest) must
// equal the band count). Shares sum to 1 unless the spectrum is silent.
func (p *BandEnergyProcessor) Compute(dest []float64) error {
	if len(dest) != len(p.bands) {
		return fmt.Errorf("destination length %d does not match %d bands", len(dest), len(p.bands))
	}
	if err := p.provider.PowerInto(p.power); err != nil {
		return err
	}

	clear(dest)
	var total float64
	for k, band := range p.binBand {
		if band < 0 {
			continue
		}
		dest[band] += p.power[k]
		total += p.power[k]
	}
	if total <= 0 {
		return nil
	}
	for i := range dest {
		dest[i] /= total
	}
	return nil
}

// Levels returns Compute's result keyed by band name.
func (p *BandEnergyProcessor) Levels() (map[string]float64, error) {
	shares := make([]float64, len(p.bands))
	if err := p.Compute(shares); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(p.bands))
	for i, band := range p.bands {
		out[band.Name] = shares[i]
	}
	return out, nil
}
