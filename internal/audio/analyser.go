package audio

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultFFTSize               = 2048
	DefaultMinDecibels           = -100.0
	DefaultMaxDecibels           = -30.0
	DefaultSmoothingTimeConstant = 0.8

	minFFTSize = 32
	maxFFTSize = 32768
)

var ErrInvalidFFTSize = errors.New("fft size must be a power of two between 32 and 32768")

// Analyser is a frequency-analysis tap. Audio routed through it is passed on
// unchanged; it keeps the most recent fftSize samples for inspection.
type Analyser struct {
	mu        sync.Mutex
	fftSize   int
	fft       *fourier.FFT
	window    []float64
	ring      []float32
	writePos  int
	smoothed  []float64
	scratch   []float64
	coeffs    []complex128
	minDB     float64
	maxDB     float64
	smoothing float64
}

func ValidFFTSize(n int) bool {
	return n >= minFFTSize && n <= maxFFTSize && n&(n-1) == 0
}

func NewAnalyser(fftSize int) (*Analyser, error) {
	if !ValidFFTSize(fftSize) {
		return nil, ErrInvalidFFTSize
	}

	window := make([]float64, fftSize)
	for i := range window {
		x := 2 * math.Pi * float64(i) / float64(fftSize)
		window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}

	return &Analyser{
		fftSize:   fftSize,
		fft:       fourier.NewFFT(fftSize),
		window:    window,
		ring:      make([]float32, fftSize),
		smoothed:  make([]float64, fftSize/2),
		scratch:   make([]float64, fftSize),
		minDB:     DefaultMinDecibels,
		maxDB:     DefaultMaxDecibels,
		smoothing: DefaultSmoothingTimeConstant,
	}, nil
}

func (a *Analyser) FFTSize() int {
	return a.fftSize
}

func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

func (a *Analyser) SetSmoothingTimeConstant(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.smoothing = math.Max(0, math.Min(1, v))
}

func (a *Analyser) SetDecibelRange(minDB, maxDB float64) {
	if minDB >= maxDB {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.minDB = minDB
	a.maxDB = maxDB
}

// Write feeds rendered samples into the analysis window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.writePos] = s
		a.writePos = (a.writePos + 1) % a.fftSize
	}
}

// Reset clears the analysis window and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.writePos = 0
}

// FloatFrequencyData fills dst with smoothed magnitudes in decibels.
func (a *Analyser) FloatFrequencyData(dst []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyse()
	n := min(len(dst), len(a.smoothed))
	for i := 0; i < n; i++ {
		dst[i] = toDecibels(a.smoothed[i])
	}
}

// ByteFrequencyData fills dst with magnitudes scaled from [minDB, maxDB] to [0, 255].
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyse()
	scale := 255 / (a.maxDB - a.minDB)
	n := min(len(dst), len(a.smoothed))
	for i := 0; i < n; i++ {
		v := math.Floor(scale * (toDecibels(a.smoothed[i]) - a.minDB))
		switch {
		case v < 0:
			dst[i] = 0
		case v > 255:
			dst[i] = 255
		default:
			dst[i] = byte(v)
		}
	}
}

func (a *Analyser) analyse() {
	for i := 0; i < a.fftSize; i++ {
		s := a.ring[(a.writePos+i)%a.fftSize]
		a.scratch[i] = float64(s) * a.window[i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.scratch)
	norm := 1 / float64(a.fftSize)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) * norm
		v := a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		a.smoothed[k] = v
	}
}

func toDecibels(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}
