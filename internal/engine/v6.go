package engine

import "math"

// timeMixV6 adds a data dependent decay on top of the V5 update.
func timeMixV6(b *Bundle, lw *layerWeights, buf *Buffer, st []float32, hooks layerHooks) error {
	xs := b.attProject(lw, buf, st)

	low := b.scr.low[:lw.decayW1.Cols]
	lw.decayW1.MulVecT(low, xs)
	for i, v := range low {
		low[i] = float32(math.Tanh(float64(v)))
	}
	lw.decayW2.MulVecT(buf.TimeDecay, low)
	for i, td := range lw.timeDecay {
		buf.TimeDecay[i] += td
	}
	if err := hooks.run(PreAttTimeDecayActivate); err != nil {
		return err
	}

	b.wkv5(lw, buf, st)
	return nil
}
