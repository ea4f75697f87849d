package engine

import "math"

const layerNormEps = 1e-5

// Matrix is a row-major [Rows, Cols] weight, matching the checkpoint layout
// of a linear layer (out, in).
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// MulVec computes dst = M x.
func (m Matrix) MulVec(dst, x []float32) {
	for r := range m.Rows {
		row := m.Data[r*m.Cols : (r+1)*m.Cols]
		var acc float32
		for c, w := range row {
			acc += w * x[c]
		}
		dst[r] = acc
	}
}

// MulVecT computes dst = Mᵀ x.
func (m Matrix) MulVecT(dst, x []float32) {
	clear(dst[:m.Cols])
	for r := range m.Rows {
		xr := x[r]
		row := m.Data[r*m.Cols : (r+1)*m.Cols]
		for c, w := range row {
			dst[c] += w * xr
		}
	}
}

func layerNorm(dst, x, w, b []float32) {
	var mean, variance float64
	for _, v := range x {
		mean += float64(v)
	}
	mean /= float64(len(x))
	for _, v := range x {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(x))
	inv := 1 / math.Sqrt(variance+layerNormEps)
	for i, v := range x {
		dst[i] = float32((float64(v)-mean)*inv)*w[i] + b[i]
	}
}

// groupNorm normalises each head of x independently.
func groupNorm(x, w, b []float32, heads int) {
	size := len(x) / heads
	for h := range heads {
		lo, hi := h*size, (h+1)*size
		layerNorm(x[lo:hi], x[lo:hi], w[lo:hi], b[lo:hi])
	}
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

// tokenShift blends the current input with the previous token's input and
// records the current one for the next step.
func tokenShift(dst, x, prev []float32) {
	for i := range x {
		dst[i] = 0.5 * (x[i] + prev[i])
	}
	copy(prev, x)
}
