package corr

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Pair is one (pearson, concordance) result.
type Pair struct {
	Pearson     float64
	Concordance float64
}

var nanPair = Pair{Pearson: math.NaN(), Concordance: math.NaN()}

// Correlate computes Pearson's r and Lin's concordance correlation coefficient
// over two equal-length series using population moments. A constant series,
// an empty series or a length mismatch yields NaN for both.
func Correlate(x, y []float64) Pair {
	if len(x) == 0 || len(x) != len(y) || isConstant(x) || isConstant(y) {
		return nanPair
	}

	mx, vx := stat.PopMeanVariance(x, nil)
	my, vy := stat.PopMeanVariance(y, nil)
	sx, sy := math.Sqrt(vx), math.Sqrt(vy)

	var sum float64
	for i := range x {
		sum += ((x[i] - mx) / sx) * ((y[i] - my) / sy)
	}
	pearson := sum / float64(len(x))
	concordance := 2 * pearson * sx * sy / (vx + vy + (mx-my)*(mx-my))
	return Pair{Pearson: pearson, Concordance: concordance}
}

// Pearson returns the sample correlation coefficient, or NaN for a constant
// or mismatched series.
func Pearson(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) || isConstant(x) || isConstant(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// Voxelwise correlates each of nvox locations along a trailing axis of ntime
// samples, with location varying fastest, then averages the non-NaN results.
func Voxelwise(x, y []float64, nvox, ntime int) Pair {
	xs := make([]float64, ntime)
	ys := make([]float64, ntime)
	pearsons := make([]float64, 0, nvox)
	concordances := make([]float64, 0, nvox)
	for v := range nvox {
		for t := range ntime {
			xs[t] = x[v+t*nvox]
			ys[t] = y[v+t*nvox]
		}
		p := Correlate(xs, ys)
		pearsons = append(pearsons, p.Pearson)
		concordances = append(concordances, p.Concordance)
	}
	return Pair{Pearson: NaNMean(pearsons), Concordance: NaNMean(concordances)}
}

// Columnwise correlates matching columns of two tables and averages the non-NaN results.
func Columnwise(x, y [][]float64) Pair {
	pearsons := make([]float64, 0, len(x))
	concordances := make([]float64, 0, len(x))
	for i := range x {
		p := Correlate(x[i], y[i])
		pearsons = append(pearsons, p.Pearson)
		concordances = append(concordances, p.Concordance)
	}
	return Pair{Pearson: NaNMean(pearsons), Concordance: NaNMean(concordances)}
}

// NaNMean averages the non-NaN values, returning NaN when there are none.
func NaNMean(values []float64) float64 {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return math.NaN()
	}
	return stat.Mean(kept, nil)
}

func isConstant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}
