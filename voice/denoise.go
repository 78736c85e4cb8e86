package voice

// Spectral Noise Reduction
//
// Classic short-time spectral subtraction. The signal is cut into Hann
// windowed frames, each frame is moved to the frequency domain, an estimate
// of the noise magnitude spectrum is subtracted, and the frames are overlap
// added back together. The noise profile comes from the signal itself: the
// quietest tenth of the frames is assumed to contain no speech.
//
// The FFT is the standard Cooley-Tukey radix-2 split: even-indexed samples
// in one half, odd-indexed in the other, recursively combined with twiddle
// factors. Frame length is a power of two so the recursion always bottoms
// out cleanly.

import (
	"math"
	"math/cmplx"
	"sort"
)

const (
	denoiseFrameLen = 512 // 32 ms at 16 kHz
	denoiseHopLen   = 256
	spectralFloor   = 0.02 // fraction of the original magnitude kept as floor
)

// SpectralDenoise reduces stationary background noise. Alpha controls the
// over-subtraction factor; 1.0 subtracts exactly the estimated noise
// magnitude. Signals shorter than two frames are returned unchanged.
func SpectralDenoise(samples []float64, sampleRate int, alpha float64) []float64 {
	if len(samples) < denoiseFrameLen*2 {
		return samples
	}
	if alpha <= 0 {
		alpha = 1.0
	}

	window := hannWindow(denoiseFrameLen)
	frameCount := 1 + (len(samples)-denoiseFrameLen)/denoiseHopLen

	// First pass: magnitude spectra and per-frame energy.
	spectra := make([][]complex128, frameCount)
	energies := make([]float64, frameCount)
	for f := 0; f < frameCount; f++ {
		frame := make([]float64, denoiseFrameLen)
		var energy float64
		for i := 0; i < denoiseFrameLen; i++ {
			v := samples[f*denoiseHopLen+i] * window[i]
			frame[i] = v
			energy += v * v
		}
		spectra[f] = fft(frame)
		energies[f] = energy
	}

	// For stationary or low-variance audio the quietest frames ARE the
	// signal; subtracting them would wipe the whole waveform. Back off the
	// same way the silence trim backs off: when no frame segment is clearly
	// quieter than the rest, there is no noise profile worth subtracting.
	if !hasNoiseFloor(energies) {
		return samples
	}

	noiseMag := estimateNoiseSpectrum(spectra, energies)

	// Second pass: subtract, floor and resynthesize via overlap-add.
	out := make([]float64, len(samples))
	norm := make([]float64, len(samples))
	for f := 0; f < frameCount; f++ {
		spectrum := spectra[f]
		for k, bin := range spectrum {
			mag := cmplx.Abs(bin)
			phase := cmplx.Phase(bin)
			cleaned := mag - alpha*noiseMag[k]
			if floor := mag * spectralFloor; cleaned < floor {
				cleaned = floor
			}
			spectrum[k] = cmplx.Rect(cleaned, phase)
		}

		frame := ifft(spectrum)
		for i := 0; i < denoiseFrameLen; i++ {
			idx := f*denoiseHopLen + i
			out[idx] += frame[i] * window[i]
			norm[idx] += window[i] * window[i]
		}
	}

	for i := range out {
		if norm[i] > 1e-9 {
			out[i] /= norm[i]
		} else {
			out[i] = samples[i]
		}
	}

	return out
}

// noiseSeparationRatio is the minimum overall-to-quietest frame energy ratio
// (~6 dB) required before the quiet frames are trusted as a noise segment.
const noiseSeparationRatio = 4.0

// hasNoiseFloor reports whether the quietest tenth of the frames is clearly
// quieter than the clip as a whole.
func hasNoiseFloor(energies []float64) bool {
	if len(energies) == 0 {
		return false
	}

	sorted := make([]float64, len(energies))
	copy(sorted, energies)
	sort.Float64s(sorted)

	quiet := len(sorted) / 10
	if quiet < 1 {
		quiet = 1
	}

	var quietSum, totalSum float64
	for _, e := range sorted[:quiet] {
		quietSum += e
	}
	for _, e := range sorted {
		totalSum += e
	}

	quietMean := quietSum / float64(quiet)
	totalMean := totalSum / float64(len(sorted))
	if quietMean <= 0 {
		return totalMean > 0
	}
	return totalMean/quietMean >= noiseSeparationRatio
}

// estimateNoiseSpectrum averages the magnitude spectra of the quietest 10%
// of frames (at least one).
func estimateNoiseSpectrum(spectra [][]complex128, energies []float64) []float64 {
	order := make([]int, len(energies))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return energies[order[a]] < energies[order[b]] })

	quiet := len(order) / 10
	if quiet < 1 {
		quiet = 1
	}

	noise := make([]float64, denoiseFrameLen)
	for _, idx := range order[:quiet] {
		for k, bin := range spectra[idx] {
			noise[k] += cmplx.Abs(bin)
		}
	}
	for k := range noise {
		noise[k] /= float64(quiet)
	}
	return noise
}

func hannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size-1)))
	}
	return window
}

func fft(input []float64) []complex128 {
	buf := make([]complex128, len(input))
	for i, v := range input {
		buf[i] = complex(v, 0)
	}
	return recursiveFFT(buf)
}

func recursiveFFT(buf []complex128) []complex128 {
	n := len(buf)
	if n <= 1 {
		return buf
	}

	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = buf[2*i]
		odd[i] = buf[2*i+1]
	}

	even = recursiveFFT(even)
	odd = recursiveFFT(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		angle := -2 * math.Pi * float64(k) / float64(n)
		t := complex(math.Cos(angle), math.Sin(angle))
		result[k] = even[k] + t*odd[k]
		result[k+n/2] = even[k] - t*odd[k]
	}
	return result
}

// ifft computes the inverse transform via the conjugation identity and
// returns only the real part; spectral subtraction keeps phases intact so
// the imaginary residue is numerical noise.
func ifft(spectrum []complex128) []float64 {
	n := len(spectrum)
	conj := make([]complex128, n)
	for i, v := range spectrum {
		conj[i] = cmplx.Conj(v)
	}

	transformed := recursiveFFT(conj)

	out := make([]float64, n)
	for i, v := range transformed {
		out[i] = real(cmplx.Conj(v)) / float64(n)
	}
	return out
}
