// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// decimate box-averages src down by an integer ratio into dst and returns
// the filled prefix. len(dst) must be at least len(src)/ratio.
func decimate(dst []float64, src []float32, ratio int) []float64 {
	n := len(src) / ratio
	scale := 1 / float64(ratio)
	for i := range n {
		var sum float64
		for _, s := range src[i*ratio : (i+1)*ratio] {
			sum += float64(s)
		}
		dst[i] = sum * scale
	}
	return dst[:n]
}

// autocorrelate fills r[0..len(r)-1] with the autocorrelation of x.
func autocorrelate(r, x []float64) {
	for lag := range r {
		if lag >= len(x) {
			r[lag] = 0
			continue
		}
		r[lag] = vecmath.DotProduct(x[:len(x)-lag], x[lag:])
	}
}

// levinsonDurbin solves for the predictor coefficients a[1..p] of order
// p = len(r)-1 such that x[n] ~ sum(a[k] x[n-k]); a[0] is 1. e is scratch of
// len(r). A zero-energy or unstable recursion stops early, leaving the
// remaining coefficients at zero.
func levinsonDurbin(a, e, r []float64) {
	clear(a)
	a[0] = 1
	e[0] = r[0]
	for k := 1; k < len(r); k++ {
		if e[k-1] <= 0 {
			return
		}
		var sum float64
		for j := 1; j < k; j++ {
			sum += a[j] * r[k-j]
		}
		gamma := (r[k] - sum) / e[k-1]
		a[k] = gamma

		// Symmetric in-place update of a[1..k-1].
		for j := 1; j <= (k-1)/2; j++ {
			aj, akj := a[j], a[k-j]
			a[j] = aj - gamma*akj
			a[k-j] = akj - gamma*aj
		}
		if k%2 == 0 {
			a[k/2] -= gamma * a[k/2]
		}
		e[k] = e[k-1] * (1 - gamma*gamma)
	}
}

// lpcEnvelope evaluates 1/|A(e^jw)| at len(spectrum) evenly spaced
// frequencies from 0 up to (but excluding) Nyquist.
func lpcEnvelope(spectrum, a []float64) {
	n := len(spectrum)
	for i := range spectrum {
		omega := math.Pi * float64(i) / float64(n)
		re, im := 1.0, 0.0
		for k := 1; k < len(a); k++ {
			sin, cos := math.Sincos(float64(k) * omega)
			re -= a[k] * cos
			im -= a[k] * sin
		}
		mag := math.Sqrt(re*re + im*im)
		if mag == 0 {
			spectrum[i] = math.MaxFloat64
			continue
		}
		spectrum[i] = 1 / mag
	}
}

// magnitudeAt returns |DFT(x)| evaluated at a single frequency.
func magnitudeAt(x []float64, freq, sampleRate float64) float64 {
	omega := 2 * math.Pi * freq / sampleRate
	var re, im float64
	for i, v := range x {
		sin, cos := math.Sincos(omega * float64(i))
		re += v * cos
		im -= v * sin
	}
	return math.Hypot(re, im)
}

// formant is a spectral peak of the LPC envelope.
type formant struct {
	freq float64
	amp  float64
}

// pickFormants scans the envelope for local maxima and assigns the strongest
// ones to the F1 (200-1000Hz), F2 (1000-2500Hz) and F3 (2500-4500Hz) regions.
// A stronger F1 candidate demotes the previous one to F2, and likewise
// for F2 to F3, which tolerates a formant straddling a region boundary.
func pickFormants(spectrum []float64, binHz float64) (f1, f2, f3 formant) {
	f1.amp, f2.amp, f3.amp = math.Inf(-1), math.Inf(-1), math.Inf(-1)
	for i := 1; i < len(spectrum)-1; i++ {
		v := spectrum[i]
		if v <= spectrum[i-1] || v <= spectrum[i+1] {
			continue
		}
		freq := float64(i) * binHz
		switch {
		case freq > 200 && freq < 1000 && v > f1.amp:
			f2 = f1
			f1 = formant{freq, v}
		case freq > 1000 && freq < 2500 && v > f2.amp:
			f3 = f2
			f2 = formant{freq, v}
		case freq > 2500 && freq < 4500 && v > f3.amp:
			f3 = formant{freq, v}
		}
	}
	return f1, f2, f3
}

// estimateVowel makes a coarse guess from the first two formants. Both must
// be present.
func estimateVowel(f1, f2 float64) string {
	switch {
	case f1 <= 0 || f2 <= 0:
		return ""
	case f1 < 500 && f2 > 2000:
		return "i"
	case f1 > 600 && f2 < 1800 && f2 > 1200:
		return "a"
	case f1 < 500 && f2 < 1200:
		return "u"
	case f1 > 500 && f1 < 800 && f2 < 1200:
		return "o"
	default:
		return ""
	}
}
