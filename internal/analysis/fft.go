package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrTooShort   = errors.New("analysis: series too short")
	ErrNotUniform = errors.New("analysis: samples are not evenly spaced")
)

// FFT returns the n/2+1 non-negative frequency coefficients of a real
// series.
func FFT(data []float64) []complex128 {
	if len(data) == 0 {
		return nil
	}
	return fourier.NewFFT(len(data)).Coefficients(nil, data)
}

func PowerSpectrum(data []float64) []float64 {
	coeffs := FFT(data)
	ps := make([]float64, len(coeffs))
	for i, c := range coeffs {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// Spectrum is a one-sided magnitude spectrum in cycles per time unit.
type Spectrum struct {
	Freqs []float64
	Power []float64
}

// spacing returns the common step of times, or ErrNotUniform.
func spacing(times []float64) (float64, error) {
	if len(times) < 4 {
		return 0, ErrTooShort
	}
	dt := (times[len(times)-1] - times[0]) / float64(len(times)-1)
	if dt <= 0 {
		return 0, ErrNotUniform
	}
	for i := 1; i < len(times); i++ {
		if math.Abs(times[i]-times[i-1]-dt) > 1e-6*dt+1e-12 {
			return 0, ErrNotUniform
		}
	}
	return dt, nil
}

// SpectrumOf removes the mean, applies a Hann window and zero pads the
// series to pad times its length before transforming.
func SpectrumOf(times, values []float64, pad int) (Spectrum, error) {
	if len(times) != len(values) {
		return Spectrum{}, ErrTooShort
	}
	dt, err := spacing(times)
	if err != nil {
		return Spectrum{}, err
	}
	if pad < 1 {
		pad = 1
	}
	n := len(values)
	mean := floats.Sum(values) / float64(n)
	buf := make([]float64, n*pad)
	for i, v := range values {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		buf[i] = (v - mean) * w
	}

	fft := fourier.NewFFT(len(buf))
	coeffs := fft.Coefficients(nil, buf)
	s := Spectrum{Freqs: make([]float64, len(coeffs)), Power: make([]float64, len(coeffs))}
	for i, c := range coeffs {
		s.Freqs[i] = fft.Freq(i) / dt
		s.Power[i] = cmplx.Abs(c)
	}
	return s, nil
}

// Peak returns the frequency of the largest non-DC bin, refined by
// fitting a parabola through it and its neighbours.
func (s Spectrum) Peak() float64 {
	if len(s.Power) < 3 {
		return 0
	}
	k := 1 + floats.MaxIdx(s.Power[1:])
	if k == len(s.Power)-1 {
		return s.Freqs[k]
	}
	a, b, c := s.Power[k-1], s.Power[k], s.Power[k+1]
	den := a - 2*b + c
	if den == 0 {
		return s.Freqs[k]
	}
	shift := 0.5 * (a - c) / den
	return s.Freqs[k] + shift*(s.Freqs[1]-s.Freqs[0])
}

// DominantFrequency estimates the main oscillation frequency of an evenly
// sampled series.
func DominantFrequency(times, values []float64) (float64, error) {
	s, err := SpectrumOf(times, values, 8)
	if err != nil {
		return 0, err
	}
	return s.Peak(), nil
}
