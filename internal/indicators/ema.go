package indicators

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA calculates the exponential moving average over the full series,
// seeded with the simple average of the first period values.
// With fewer values than the period it degrades to a plain average.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0
	}
	if len(values) < period {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}

	multiplier := 2.0 / float64(period+1)

	ema := 0.0
	for _, v := range values[:period] {
		ema += v
	}
	ema /= float64(period)

	for _, v := range values[period:] {
		ema = v*multiplier + ema*(1-multiplier)
	}
	return ema
}
