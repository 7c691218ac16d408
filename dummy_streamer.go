package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adcstream/pkg/dsp"
	"github.com/adcstream/pkg/pipeline"
	"github.com/adcstream/pkg/source"
)

const (
	simBaseWeight = 100.0
	simAmplitude  = 20.0
	simDither     = 0.5
)

// simFileName names the i-th simulated source for a test frequency, so the
// frequency selection mode can find it.
func simFileName(i int, freq float64) string {
	return fmt.Sprintf("data_file_%d_%s%s", i, source.FrequencyTag(strconv.FormatFloat(freq, 'f', -1, 64)), source.Extension)
}

// RunSimulator writes sim.Files ADC sources into dir. Source i carries a
// sine at sim.Frequencies[i mod len] sampled at the rate implied by
// intervalMS, plus dither. Existing files are left alone. It returns the
// names of every simulated source, written or not.
func RunSimulator(dir string, intervalMS uint32, sim SimSettings) ([]string, error) {
	if sim.Files <= 0 || sim.Samples <= 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sim: create %s: %w", dir, err)
	}

	freqs := sim.Frequencies
	if len(freqs) == 0 {
		freqs = []float64{1}
	}
	rate := pipeline.SampleRate(intervalMS)

	names := make([]string, 0, sim.Files)
	for i := 0; i < sim.Files; i++ {
		freq := freqs[i%len(freqs)]
		name := simFileName(i, freq)
		names = append(names, name)

		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return names, fmt.Errorf("sim: stat %s: %w", path, err)
		}
		rng := rand.New(rand.NewPCG(uint64(i), uint64(sim.Samples)))
		if err := writeSimSource(path, sim.Samples, freq, rate, rng); err != nil {
			return names, err
		}
	}
	return names, nil
}

func writeSimSource(path string, samples int, freq, rate float64, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sim: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	phaseStep := 2.0 * math.Pi * freq / rate
	for n := 0; n < samples; n++ {
		// Dither keeps repeated values from collapsing onto one ADC code.
		weight := simBaseWeight + simAmplitude*math.Sin(phaseStep*float64(n)) + (rng.Float64()*2-1)*simDither
		raw := int64(math.Round(dsp.DefaultCalibration.Raw(weight)))
		fmt.Fprintf(w, "%s%d\n", source.SampleKey, raw)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("sim: write %s: %w", path, err)
	}
	return f.Close()
}
