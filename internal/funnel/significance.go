package funnel

import (
	"math"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// Result is the statistical read of one experiment's funnel, based on the
// sign-up conversion rate per variant.
type Result struct {
	Variants        []VariantResult
	Confident       bool    // >= 95% confidence
	ConfidenceLevel float64 // 0-1
	LeadingVariant  int
}

// VariantResult contains the funnel numbers and confidence interval for a
// single variant arm.
type VariantResult struct {
	Index   int
	Name    string
	Users   int
	SignUps int
	Buys    int
	Rate    float64
	CILower float64
	CIUpper float64
}

// SignificanceTest performs a two-proportion z-test. Returns the confidence
// level (0-1) that variant A converts better than variant B.
func SignificanceTest(aConv, aUsers, bConv, bUsers int) float64 {
	if aUsers == 0 || bUsers == 0 {
		return 0.5 // need data from both arms
	}

	pA := float64(aConv) / float64(aUsers)
	pB := float64(bConv) / float64(bUsers)

	// Pooled proportion under the null hypothesis (pA = pB)
	pooledP := float64(aConv+bConv) / float64(aUsers+bUsers)

	se := math.Sqrt(pooledP * (1 - pooledP) * (1/float64(aUsers) + 1/float64(bUsers)))
	if se == 0 {
		if pA > pB {
			return 1.0
		} else if pA < pB {
			return 0.0
		}
		return 0.5
	}

	z := (pA - pB) / se

	return normalCDF(z)
}

// normalCDF approximates the cumulative distribution function of the
// standard normal distribution (Abramowitz and Stegun 7.1.26).
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

// Analyze turns a computed funnel into per-variant rates, Wilson intervals
// and a winner confidence. The leading variant is compared against the
// control (variant 0), or against the best challenger when the control
// itself leads.
func Analyze(exp *store.Experiment, stats *Stats) *Result {
	variants := make([]VariantResult, len(exp.Variants))
	maxRate := 0.0
	leading := 0

	for i, name := range exp.Variants {
		users := stats.Distribution[name]
		conv := stats.Conversions[name]

		rate := 0.0
		if users > 0 {
			rate = float64(conv.SignUps) / float64(users)
		}

		ciLower, ciUpper := WilsonInterval(conv.SignUps, users, 0.95)

		variants[i] = VariantResult{
			Index:   i,
			Name:    name,
			Users:   users,
			SignUps: conv.SignUps,
			Buys:    conv.Buys,
			Rate:    rate,
			CILower: ciLower,
			CIUpper: ciUpper,
		}

		if rate > maxRate {
			maxRate = rate
			leading = i
		}
	}

	var confidenceLevel float64
	if len(variants) >= 2 {
		if leading == 0 {
			challenger := 1
			bestRate := 0.0
			for i := 1; i < len(variants); i++ {
				if variants[i].Rate > bestRate {
					bestRate = variants[i].Rate
					challenger = i
				}
			}
			confidenceLevel = SignificanceTest(
				variants[0].SignUps, variants[0].Users,
				variants[challenger].SignUps, variants[challenger].Users,
			)
		} else {
			confidenceLevel = SignificanceTest(
				variants[leading].SignUps, variants[leading].Users,
				variants[0].SignUps, variants[0].Users,
			)
		}
	}

	return &Result{
		Variants:        variants,
		Confident:       confidenceLevel >= 0.95,
		ConfidenceLevel: confidenceLevel,
		LeadingVariant:  leading,
	}
}
