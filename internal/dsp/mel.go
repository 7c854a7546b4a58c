package dsp

import "math"

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelFilterBank builds numMels triangular filters over fftSize/2+1 bins.
func MelFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	halfFFT := fftSize/2 + 1
	if highFreq <= 0 || highFreq > float64(sampleRate)/2 {
		highFreq = float64(sampleRate) / 2
	}
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	step := (highMel - lowMel) / float64(numMels+1)
	bins := make([]int, numMels+2)
	for i := range bins {
		hz := melToHz(lowMel + float64(i)*step)
		bin := int(math.Round(hz * float64(fftSize) / float64(sampleRate)))
		if bin >= halfFFT {
			bin = halfFFT - 1
		}
		bins[i] = bin
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		filter := make([]float64, halfFFT)
		left, center, right := bins[m], bins[m+1], bins[m+2]
		for k := left; k <= right && k < halfFFT; k++ {
			switch {
			case k < center && center > left:
				filter[k] = float64(k-left) / float64(center-left)
			case k == center:
				filter[k] = 1
			case k > center && right > center:
				filter[k] = float64(right-k) / float64(right-center)
			}
		}
		bank[m] = filter
	}
	return bank
}

// LogMel applies the filterbank to a power spectrum and returns log energies
// floored at 1e-10.
func LogMel(bank [][]float64, power []float64) []float64 {
	out := make([]float64, len(bank))
	for m, filter := range bank {
		var sum float64
		for k, w := range filter {
			if w != 0 && k < len(power) {
				sum += w * power[k]
			}
		}
		if sum < 1e-10 {
			sum = 1e-10
		}
		out[m] = math.Log(sum)
	}
	return out
}
