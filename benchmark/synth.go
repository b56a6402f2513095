package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/pipecorr/pipecorr/internal/nifti"
)

// synthVolumes are the volumetric derivatives written for each subject.
var synthVolumes = []string{
	"anatomical_brain",
	"anatomical_csf_mask",
	"functional_preprocessed",
	"functional_brain_mask",
	"alff_img",
}

// SynthConfig sizes a generated dataset.
type SynthConfig struct {
	Subjects int
	Dims     []int // last axis is time for 4-D volumes
	Noise    float64
}

// generateDataset writes base/name/{old,new} trees shaped like pipeline
// output. The new tree is the old one plus Gaussian noise.
func generateDataset(base, name string, cfg SynthConfig) error {
	rng := rand.New(rand.NewPCG(uint64(cfg.Subjects), 42))
	for s := range cfg.Subjects {
		subject := fmt.Sprintf("sub-%07d", 50002+s)
		for _, deriv := range synthVolumes {
			dims := cfg.Dims
			if deriv != "functional_preprocessed" {
				dims = dims[:3]
			}
			oldImg, newImg := synthPair(rng, dims, cfg.Noise)
			file := fmt.Sprintf("%s_ses-1_%s.nii.gz", subject, deriv)
			if err := savePair(base, name, subject, deriv, file, oldImg, newImg); err != nil {
				return err
			}
		}
		if err := writeSeries(rng, base, name, subject, cfg.Noise); err != nil {
			return err
		}
	}
	return nil
}

func synthPair(rng *rand.Rand, dims []int, noise float64) (*nifti.Image, *nifti.Image) {
	n := 1
	for _, d := range dims {
		n *= d
	}
	oldData := make([]float64, n)
	newData := make([]float64, n)
	for i := range oldData {
		oldData[i] = 100 + 10*math.Sin(float64(i)/7) + rng.NormFloat64()
		newData[i] = oldData[i] + noise*rng.NormFloat64()
	}
	pix := make([]float64, len(dims))
	for i := range pix {
		pix[i] = 3
	}
	mk := func(data []float64) *nifti.Image {
		return &nifti.Image{Dims: dims, PixDim: pix, Datatype: nifti.DTFloat32, Data: data}
	}
	return mk(oldData), mk(newData)
}

func savePair(base, name, subject, deriv, file string, oldImg, newImg *nifti.Image) error {
	for run, img := range map[string]*nifti.Image{"old": oldImg, "new": newImg} {
		dir := filepath.Join(base, name, run, "output", deriv, subject+"_ses-1")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := nifti.Save(filepath.Join(dir, file), img); err != nil {
			return fmt.Errorf("failed to write %s volume: %w", run, err)
		}
	}
	return nil
}

// writeSeries writes a roi_timeseries.1D table with a few ROI columns per run.
func writeSeries(rng *rand.Rand, base, name, subject string, noise float64) error {
	const rows, cols = 120, 4
	var oldB, newB strings.Builder
	for range rows {
		for c := range cols {
			v := rng.NormFloat64()
			sep := "\t"
			if c == cols-1 {
				sep = "\n"
			}
			fmt.Fprintf(&oldB, "%.6f%s", v, sep)
			fmt.Fprintf(&newB, "%.6f%s", v+noise*rng.NormFloat64(), sep)
		}
	}
	for run, body := range map[string]string{"old": oldB.String(), "new": newB.String()} {
		dir := filepath.Join(base, name, run, "output", "roi_timeseries", subject+"_ses-1")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "roi_timeseries.1D"), []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}
