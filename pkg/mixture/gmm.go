// Package mixture fits one-dimensional Gaussian mixtures to intensity
// samples, used to characterize intensity subtypes within a tissue class.
package mixture

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Components holds the fitted mixture parameters, one entry per component.
type Components struct {
	Weights []float64
	Means   []float64
	StdDevs []float64
}

const sigmaFloor = 1e-6

// Fit estimates a k-component Gaussian mixture over values by
// expectation-maximization. Initialization spreads the component means over
// the sample quantiles, which keeps the fit deterministic. Needs at least k
// samples.
func Fit(values []float64, k, maxIter int) (Components, error) {
	if k < 1 {
		return Components{}, fmt.Errorf("component count must be positive, got %d", k)
	}
	if len(values) < k {
		return Components{}, fmt.Errorf("%d samples cannot support %d components", len(values), k)
	}
	if maxIter < 1 {
		maxIter = 100
	}

	c := Components{
		Weights: make([]float64, k),
		Means:   make([]float64, k),
		StdDevs: make([]float64, k),
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	_, spread := stat.MeanStdDev(values, nil)
	if spread < sigmaFloor || math.IsNaN(spread) {
		spread = sigmaFloor
	}
	for i := 0; i < k; i++ {
		q := (2*float64(i) + 1) / (2 * float64(k))
		c.Means[i] = stat.Quantile(q, stat.Empirical, sorted, nil)
		c.Weights[i] = 1 / float64(k)
		c.StdDevs[i] = spread
	}
	if k == 1 {
		c.Means[0] = stat.Mean(values, nil)
		return c, nil
	}

	n := len(values)
	resp := make([]float64, n*k)
	prevLL := math.Inf(-1)

	for iter := 0; iter < maxIter; iter++ {
		// E step
		ll := 0.0
		for i, v := range values {
			total := 0.0
			for j := 0; j < k; j++ {
				p := c.Weights[j] * distuv.Normal{Mu: c.Means[j], Sigma: c.StdDevs[j]}.Prob(v)
				resp[i*k+j] = p
				total += p
			}
			if total <= 0 {
				total = math.SmallestNonzeroFloat64
			}
			for j := 0; j < k; j++ {
				resp[i*k+j] /= total
			}
			ll += math.Log(total)
		}

		// M step
		for j := 0; j < k; j++ {
			sumR, sumV := 0.0, 0.0
			for i, v := range values {
				sumR += resp[i*k+j]
				sumV += resp[i*k+j] * v
			}
			if sumR <= 0 {
				continue
			}
			mean := sumV / sumR
			sumSq := 0.0
			for i, v := range values {
				d := v - mean
				sumSq += resp[i*k+j] * d * d
			}
			c.Weights[j] = sumR / float64(n)
			c.Means[j] = mean
			c.StdDevs[j] = math.Sqrt(sumSq / sumR)
			if c.StdDevs[j] < sigmaFloor {
				c.StdDevs[j] = sigmaFloor
			}
		}

		if math.Abs(ll-prevLL) < 1e-6 {
			break
		}
		prevLL = ll
	}
	return c, nil
}
