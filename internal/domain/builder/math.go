package builder

// Shares divides each value by the slice total. A zero total yields
// all-zero shares rather than NaNs.
func Shares(values []float64) []float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	out := make([]float64, len(values))
	if total == 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}

// Percents renders shares on a 0-100 scale.
func Percents(values []float64) []float64 {
	shares := Shares(values)
	for i := range shares {
		shares[i] *= 100
	}
	return shares
}

// MarketShare divides a row metric by the population total from the
// denominator query.
func MarketShare(rowMetric, total float64) float64 {
	if total == 0 {
		return 0
	}
	return rowMetric / total
}

// Index compares a segment's share within an app's audience to its
// share of the total population, scaled to 100 as the neutral
// baseline. Above 100 means over-representation.
func Index(appShare, popShare float64) float64 {
	if popShare == 0 {
		return 0
	}
	return appShare / popShare * 100
}

// Dominant returns the label with the highest value and its share of
// the total. Empty input yields empty label and zero share.
func Dominant(labels []string, values []float64) (string, float64) {
	if len(labels) == 0 || len(labels) != len(values) {
		return "", 0
	}
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	shares := Shares(values)
	return labels[best], shares[best]
}
