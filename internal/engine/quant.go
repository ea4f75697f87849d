package engine

import (
	"math"

	"github.com/samcharles93/rwkvffi/internal/model"
)

const quantBlockSize = 64

// nf4Code is the NormalFloat4 code book: quantiles of a unit normal.
var nf4Code = [16]float32{
	-1.0, -0.6961928, -0.5250731, -0.3949175, -0.2844414, -0.1847734, -0.0910500, 0,
	0.0795803, 0.1609302, 0.2461123, 0.3379152, 0.4407098, 0.5626170, 0.7229568, 1.0,
}

// sf4Code is a signed 4-bit float code book (1 sign, 2 exponent, 1 mantissa
// bits) scaled to [-1, 1].
var sf4Code = [16]float32{
	-1, -4.0 / 6, -3.0 / 6, -2.0 / 6, -1.5 / 6, -1.0 / 6, -0.5 / 6, 0,
	0, 0.5 / 6, 1.0 / 6, 1.5 / 6, 2.0 / 6, 3.0 / 6, 4.0 / 6, 1,
}

// quantize rounds m through the storage format q and writes the
// dequantized values back, so later matmuls see exactly what a quantized
// kernel would.
func quantize(m Matrix, q model.Quant) {
	switch q {
	case model.QuantInt8:
		quantizeInt8(m)
	case model.QuantNF4:
		quantizeBlocks(m.Data, &nf4Code)
	case model.QuantSF4:
		quantizeBlocks(m.Data, &sf4Code)
	}
}

// quantizeInt8 uses one absmax scale per row.
func quantizeInt8(m Matrix) {
	for r := range m.Rows {
		row := m.Data[r*m.Cols : (r+1)*m.Cols]
		scale := absMax(row) / 127
		if scale == 0 {
			continue
		}
		for i, v := range row {
			q := math.Round(float64(v / scale))
			row[i] = float32(q) * scale
		}
	}
}

func quantizeBlocks(data []float32, code *[16]float32) {
	for lo := 0; lo < len(data); lo += quantBlockSize {
		block := data[lo:min(lo+quantBlockSize, len(data))]
		scale := absMax(block)
		if scale == 0 {
			continue
		}
		for i, v := range block {
			block[i] = code[nearest(code, v/scale)] * scale
		}
	}
}

func nearest(code *[16]float32, x float32) int {
	best, dist := 0, float32(math.Inf(1))
	for i, c := range code {
		if d := abs32(x - c); d < dist {
			best, dist = i, d
		}
	}
	return best
}

func absMax(xs []float32) float32 {
	var m float32
	for _, v := range xs {
		m = max(m, abs32(v))
	}
	return m
}

func abs32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}
