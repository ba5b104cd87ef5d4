package aggregate

import "math"

// SafeDiv returns a/b, or 0 when b is 0 or the result is not finite.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	v := a / b
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Ratios en porcentaje salvo CPC.

func ACoS(spend, sales float64) float64 { return SafeDiv(spend, sales) * 100 }

func TACoS(adSpend, revenue float64) float64 { return SafeDiv(adSpend, revenue) * 100 }

func CTR(clicks, impressions int) float64 {
	return SafeDiv(float64(clicks), float64(impressions)) * 100
}

func CVR(orders, clicks int) float64 { return SafeDiv(float64(orders), float64(clicks)) * 100 }

func CPC(spend float64, clicks int) float64 { return SafeDiv(spend, float64(clicks)) }

// RemoveVAT converts a VAT-inclusive amount to its net value.
func RemoveVAT(gross, ratePct float64) float64 {
	return SafeDiv(gross, 1+ratePct/100)
}

func Round2(f float64) float64 { return math.Round(f*100) / 100 }
