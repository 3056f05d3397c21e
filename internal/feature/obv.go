package feature

// OBV tracks On-Balance Volume: cumulative volume added on up closes and
// subtracted on down closes, plus a short EMA of OBV itself to expose a
// slope sign for the chop-score computation, mirroring the
// accumulate-and-derive shape the teacher's indicator package uses for
// every running series.
type OBV struct {
	prevClose float64
	have      bool
	value     float64
	slopeEMA  *EMA
}

// NewOBV creates an OBV tracker with a 5-period slope EMA.
func NewOBV() *OBV {
	return &OBV{slopeEMA: NewEMA(5)}
}

// Update feeds a new (close, volume) pair.
func (o *OBV) Update(close, volume float64) {
	if !o.have {
		o.have = true
		o.prevClose = close
		o.slopeEMA.Update(o.value)
		return
	}
	switch {
	case close > o.prevClose:
		o.value += volume
	case close < o.prevClose:
		o.value -= volume
	}
	o.prevClose = close
	o.slopeEMA.Update(o.value)
}

// Value returns the cumulative OBV.
func (o *OBV) Value() float64 { return o.value }

// Slope returns value minus its short EMA: positive means OBV is rising
// faster than its recent trend, i.e. accumulation is accelerating.
func (o *OBV) Slope() float64 {
	if !o.slopeEMA.Ready() {
		return 0
	}
	return o.value - o.slopeEMA.Value()
}
