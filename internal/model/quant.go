package model

import (
	"fmt"
	"maps"
	"slices"
)

// Quant is the storage precision applied to a layer's matrices.
type Quant uint8

const (
	QuantNone Quant = iota
	QuantInt8
	QuantNF4
	QuantSF4
)

func (q Quant) String() string {
	switch q {
	case QuantNone:
		return "none"
	case QuantInt8:
		return "int8"
	case QuantNF4:
		return "nf4"
	case QuantSF4:
		return "sf4"
	default:
		return fmt.Sprintf("Quant(%d)", uint8(q))
	}
}

// QuantPlan maps layer index to precision. Layers not present stay at full
// precision.
type QuantPlan map[int]Quant

// NewQuantPlan quantizes layers [0, int8) to Int8, then [0, nf4) to NF4, then
// [0, sf4) to SF4. Later precisions override earlier ones on overlap. Every
// count is capped at numLayer, so callers may pass a huge value to mean all
// layers.
func NewQuantPlan(numLayer, int8Layers, nf4Layers, sf4Layers int) QuantPlan {
	layers := func(n int) int { return max(min(n, numLayer), 0) }
	plan := make(QuantPlan, layers(max(int8Layers, nf4Layers, sf4Layers)))
	for l := range layers(int8Layers) {
		plan[l] = QuantInt8
	}
	for l := range layers(nf4Layers) {
		plan[l] = QuantNF4
	}
	for l := range layers(sf4Layers) {
		plan[l] = QuantSF4
	}
	return plan
}

func (p QuantPlan) For(layer int) Quant {
	if p == nil {
		return QuantNone
	}
	return p[layer]
}

// Layers returns the planned layer indices in ascending order.
func (p QuantPlan) Layers() []int {
	return slices.Sorted(maps.Keys(p))
}

// Clip drops entries for layers the model does not have.
func (p QuantPlan) Clip(numLayer int) QuantPlan {
	out := make(QuantPlan, len(p))
	for l, q := range p {
		if l < numLayer && q != QuantNone {
			out[l] = q
		}
	}
	return out
}
