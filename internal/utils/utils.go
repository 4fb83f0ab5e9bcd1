package utils

import (
	"math"
	"slices"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Float | constraints.Integer
}

func SumSlice[T Number](arr []T) (r T) {
	for i := range arr {
		r += arr[i]
	}
	return
}

func IntAbs(a int) int {
	if a < 0 {
		return -a
	} else {
		return a
	}

}

// BinomialError is the half width of the normal-approximation confidence
// interval of a fraction k/n at the given quantile.
func BinomialError(k, n uint64, quantile float64) float64 {
	if n == 0 {
		return 0
	}
	p := float64(k) / float64(n)
	return quantile * math.Sqrt(p*(1-p)/float64(n))
}

func Intersect(a, b []string) *string {
	for i := range a {
		if slices.Contains(b, a[i]) {
			return &a[i]
		}
	}
	return nil
}
