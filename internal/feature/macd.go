package feature

// MACD computes the Moving Average Convergence/Divergence line (EMA12 -
// EMA26) and its signal line (EMA9 of the MACD line), following the same
// EMA-composition idiom as the teacher's indicator package, which treats
// every derived series (signal line included) as just another EMA feed.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	line float64
	hist float64
}

// NewMACD creates a MACD with the standard 12/26/9 periods.
func NewMACD() *MACD {
	return &MACD{
		fast:   NewEMA(12),
		slow:   NewEMA(26),
		signal: NewEMA(9),
	}
}

// Update feeds a new close price.
func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.line)
	m.hist = m.line - m.signal.Value()
}

// Line returns the MACD line (fast EMA - slow EMA).
func (m *MACD) Line() float64 { return m.line }

// Signal returns the signal line (EMA9 of the MACD line).
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns line - signal.
func (m *MACD) Histogram() float64 { return m.hist }

// Ready reports whether both underlying EMAs have seeded.
func (m *MACD) Ready() bool { return m.fast.Ready() && m.slow.Ready() }
