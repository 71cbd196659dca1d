// Package pulse condenses raw per-channel pulse signals into fixed-size
// descriptors.
//
// Pulse signals vary in length with particle transit time, which makes them
// awkward as tabular features. Each signal is min-max normalized and
// reduced to the coefficients of a least-squares polynomial fit over the
// unit interval, giving every particle the same number of columns
// regardless of signal length.
package pulse

import (
	"errors"
	"fmt"
	"math"
)

// MaxDegree bounds the fit degree; normal equations become numerically
// useless well before this.
const MaxDegree = 31

var (
	// ErrEmptySignal reports a pulse with no samples.
	ErrEmptySignal = errors.New("empty pulse signal")
	// ErrSingular reports a fit whose normal equations could not be solved.
	ErrSingular = errors.New("singular fit")
)

// Normalize min-max scales a signal into [0, 1] in place-safe copy form.
// A constant signal maps to all zeros rather than dividing by zero.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// Fit computes the least-squares polynomial of the given degree through the
// signal sampled at evenly spaced positions on [0, 1]. Coefficients are
// returned in ascending power order and always have degree+1 entries.
//
// Signals shorter than degree+1 samples are fitted at the highest degree
// the data supports; the remaining coefficients are zero so the output
// width stays fixed.
func Fit(values []float64, degree int) ([]float64, error) {
	if len(values) == 0 {
		return nil, ErrEmptySignal
	}
	if degree < 0 || degree > MaxDegree {
		return nil, fmt.Errorf("fit degree %d out of range [0, %d]", degree, MaxDegree)
	}

	effective := degree
	if effective > len(values)-1 {
		effective = len(values) - 1
	}

	xs := positions(len(values))
	coeffs, err := leastSquares(xs, values, effective)
	if err != nil {
		return nil, err
	}
	out := make([]float64, degree+1)
	copy(out, coeffs)
	return out, nil
}

// FitNormalized is the composition the pulse summary stage uses: normalize,
// then fit.
func FitNormalized(values []float64, degree int) ([]float64, error) {
	return Fit(Normalize(values), degree)
}

func positions(n int) []float64 {
	xs := make([]float64, n)
	if n == 1 {
		return xs
	}
	for i := range xs {
		xs[i] = float64(i) / float64(n-1)
	}
	return xs
}

// leastSquares solves the Vandermonde normal equations with Gaussian
// elimination and partial pivoting.
func leastSquares(xs, ys []float64, degree int) ([]float64, error) {
	n := degree + 1

	// powerSums[k] = sum x^k for k in [0, 2*degree].
	powerSums := make([]float64, 2*degree+1)
	rhs := make([]float64, n)
	for i, x := range xs {
		p := 1.0
		for k := 0; k <= 2*degree; k++ {
			powerSums[k] += p
			if k < n {
				rhs[k] += p * ys[i]
			}
			p *= x
		}
	}

	matrix := make([][]float64, n)
	for r := 0; r < n; r++ {
		matrix[r] = make([]float64, n+1)
		for c := 0; c < n; c++ {
			matrix[r][c] = powerSums[r+c]
		}
		matrix[r][n] = rhs[r]
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(matrix[r][col]) > math.Abs(matrix[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(matrix[pivot][col]) < 1e-12 {
			return nil, ErrSingular
		}
		matrix[col], matrix[pivot] = matrix[pivot], matrix[col]
		for r := col + 1; r < n; r++ {
			factor := matrix[r][col] / matrix[col][col]
			for c := col; c <= n; c++ {
				matrix[r][c] -= factor * matrix[col][c]
			}
		}
	}

	coeffs := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := matrix[r][n]
		for c := r + 1; c < n; c++ {
			sum -= matrix[r][c] * coeffs[c]
		}
		coeffs[r] = sum / matrix[r][r]
	}
	return coeffs, nil
}

// Eval evaluates an ascending-order coefficient vector at x.
func Eval(coeffs []float64, x float64) float64 {
	sum := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		sum = sum*x + coeffs[i]
	}
	return sum
}
