package feature

// RSI computes the Relative Strength Index using Wilder's smoothing,
// grounded on the teacher's internal/indicator/rsi.go — same accumulate-
// then-smooth shape, generalized to float64 prices (no paise division).
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates an RSI indicator with the given period (14 or 7 per §3).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update feeds a new close price.
func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFromAvgs(r.avgGain, r.avgLoss)
		}
		return
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFromAvgs(r.avgGain, r.avgLoss)
}

func rsiFromAvgs(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// Value returns the current RSI value (0 until Ready).
func (r *RSI) Value() float64 { return r.current }

// Ready reports whether the initial average has been seeded.
func (r *RSI) Ready() bool { return r.count > r.period }
