package raam

// masked is a dense row-major matrix with an explicit validity mask.
// Cells for origin/destination pairs with no cost edge are invalid and
// must never feed the min/max searches; modeling the mask explicitly
// keeps NaN out of the arithmetic entirely.
type masked struct {
	rows, cols int
	vals       []float64
	ok         []bool
}

func newMasked(rows, cols int) *masked {
	return &masked{
		rows: rows,
		cols: cols,
		vals: make([]float64, rows*cols),
		ok:   make([]bool, rows*cols),
	}
}

func (m *masked) set(i, j int, v float64) {
	m.vals[i*m.cols+j] = v
	m.ok[i*m.cols+j] = true
}

func (m *masked) at(i, j int) (float64, bool) {
	return m.vals[i*m.cols+j], m.ok[i*m.cols+j]
}

// argminRow returns the valid column with the least value in row i,
// or -1 when the whole row is masked.
func (m *masked) argminRow(i int, value func(j int, v float64) float64) int {
	best := -1
	var bestV float64
	for j := 0; j < m.cols; j++ {
		v, ok := m.at(i, j)
		if !ok {
			continue
		}
		v = value(j, v)
		if best < 0 || v < bestV {
			best, bestV = j, v
		}
	}
	return best
}

// argmaxRow returns the valid column with the greatest value in row i
// among columns accepted by keep, or -1 when none qualifies.
func (m *masked) argmaxRow(i int, keep func(j int) bool, value func(j int, v float64) float64) int {
	best := -1
	var bestV float64
	for j := 0; j < m.cols; j++ {
		v, ok := m.at(i, j)
		if !ok || !keep(j) {
			continue
		}
		v = value(j, v)
		if best < 0 || v > bestV {
			best, bestV = j, v
		}
	}
	return best
}
