package audio

import (
	"math"
	"math/rand"
	"testing"
)

func energy(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum
}

func TestSpectralSubtractionSuppressesStationaryNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	noise := make([]float64, 16000)
	for i := range noise {
		noise[i] = 0.05 * rng.NormFloat64()
	}

	out, err := SpectralSubtraction{FrameSize: 512, NoiseFrames: 10, Alpha: 2.0, Floor: 0.1}.Apply(noise)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(out) != len(noise) {
		t.Fatalf("Expected %d samples, got %d", len(noise), len(out))
	}

	if energy(out) >= 0.5*energy(noise) {
		t.Errorf("Expected noise energy to drop by half, before %f after %f", energy(noise), energy(out))
	}
}

func TestSpectralSubtractionIdentityWithoutNoiseProfile(t *testing.T) {
	// Leading silence gives a zero noise profile, so the tone passes through.
	signal := make([]float64, 8192)
	for i := 2048; i < len(signal); i++ {
		signal[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/16000)
	}

	out, err := SpectralSubtraction{FrameSize: 256, NoiseFrames: 4, Alpha: 2.0, Floor: 0.1}.Apply(signal)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	for i := 256; i < len(signal)-256; i++ {
		if math.Abs(out[i]-signal[i]) > 1e-6 {
			t.Fatalf("Sample %d changed: expected %f, got %f", i, signal[i], out[i])
		}
	}
}

func TestSpectralSubtractionShortSignal(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3}
	out, err := SpectralSubtraction{FrameSize: 512, NoiseFrames: 10, Alpha: 2, Floor: 0.1}.Apply(in)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Expected unchanged short signal, got %v", out)
		}
	}
}

func TestPreEmphasis(t *testing.T) {
	out := PreEmphasis([]float64{1, 1, 1}, 0.97)
	expected := []float64{1, 0.03, 0.03}
	for i := range expected {
		if math.Abs(out[i]-expected[i]) > 1e-12 {
			t.Errorf("Sample %d: expected %f, got %f", i, expected[i], out[i])
		}
	}

	if len(PreEmphasis(nil, 0.97)) != 0 {
		t.Error("Expected empty output for empty input")
	}
}

func TestPeakNormalize(t *testing.T) {
	out := PeakNormalize([]float64{0.1, -0.5, 0.25}, 0.95)
	if math.Abs(out[1]+0.95) > 1e-12 {
		t.Errorf("Expected -0.95, got %f", out[1])
	}
	if math.Abs(out[0]-0.19) > 1e-12 {
		t.Errorf("Expected 0.19, got %f", out[0])
	}

	silent := PeakNormalize([]float64{0, 0}, 0.95)
	if silent[0] != 0 || silent[1] != 0 {
		t.Errorf("Expected silence to stay silent, got %v", silent)
	}
}

func TestDownmix(t *testing.T) {
	mono := Downmix([]float64{1, 0, 0.5, 0.5, -1, 1}, 2)
	expected := []float64{0.5, 0.5, 0}
	if len(mono) != len(expected) {
		t.Fatalf("Expected %d frames, got %d", len(expected), len(mono))
	}
	for i := range expected {
		if mono[i] != expected[i] {
			t.Errorf("Frame %d: expected %f, got %f", i, expected[i], mono[i])
		}
	}
}

func TestResampleSameRateIsNoop(t *testing.T) {
	in := []float64{0.1, 0.2}
	out, err := Resample(in, 16000, 16000)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if len(out) != 2 || out[0] != 0.1 {
		t.Errorf("Expected passthrough, got %v", out)
	}

	if _, err := Resample(in, 0, 16000); err == nil {
		t.Error("Expected error for zero source rate")
	}
}

func TestResampleKeepsFilterTail(t *testing.T) {
	cases := []struct {
		from, to int
		n        int
	}{
		{8000, 16000, 24000},
		{44100, 16000, 132300},
		{48000, 16000, 144000},
		{16000, 8000, 1601},
	}

	for _, c := range cases {
		samples := make([]float64, c.n)
		for i := range samples {
			samples[i] = 0.5 * math.Sin(2*math.Pi*300*float64(i)/float64(c.from))
		}

		out, err := Resample(samples, c.from, c.to)
		if err != nil {
			t.Fatalf("Resample %d -> %d failed: %v", c.from, c.to, err)
		}

		want := ResampledLength(c.n, c.from, c.to)
		if len(out) != want {
			t.Errorf("Resample %d -> %d: expected %d samples, got %d", c.from, c.to, want, len(out))
		}
	}
}

func TestAlignResampled(t *testing.T) {
	out := alignResampled([]float64{0, 0, 1, 2, 3, 4}, 2, 3)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Errorf("Expected [1 2 3], got %v", out)
	}

	out = alignResampled([]float64{1, 2}, 5, 4)
	if len(out) != 4 || out[1] != 2 || out[3] != 0 {
		t.Errorf("Expected [1 2 0 0], got %v", out)
	}
}
