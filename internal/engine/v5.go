package engine

import "math"

func timeMixV5(b *Bundle, lw *layerWeights, buf *Buffer, st []float32, _ layerHooks) error {
	b.attProject(lw, buf, st)
	copy(buf.TimeDecay, lw.timeDecay)
	b.wkv5(lw, buf, st)
	return nil
}

// attProject shifts the attention input and computes r, k and v.
func (b *Bundle) attProject(lw *layerWeights, buf *Buffer, st []float32) []float32 {
	emb := b.w.info.NumEmb
	xs := b.scr.y
	tokenShift(xs, buf.AttX, row(st, 0, emb))
	lw.attR.MulVec(buf.AttR, xs)
	lw.attK.MulVec(buf.AttK, xs)
	lw.attV.MulVec(buf.AttV, xs)
	return xs
}

// wkv5 runs the per-head matrix state update shared by V5 and V6, reading
// the raw decay from buf.TimeDecay. State rows 1..hs hold the key index i,
// with column h*hs+j for value j of head h.
func (b *Bundle) wkv5(lw *layerWeights, buf *Buffer, st []float32) {
	info := b.w.info
	emb, heads, hs := info.NumEmb, info.NumHead, info.HeadSize()
	decay := b.scr.decay
	for i, td := range buf.TimeDecay {
		decay[i] = float32(math.Exp(-math.Exp(float64(td))))
	}

	y := b.scr.kk
	clear(y)
	for h := range heads {
		base := h * hs
		for i := range hs {
			c := base + i
			r, k, u, w := buf.AttR[c], buf.AttK[c], lw.timeFirst[c], decay[c]
			s := row(st, 1+i, emb)[base : base+hs]
			for j := range hs {
				kv := k * buf.AttV[base+j]
				y[base+j] += r * (u*kv + s[j])
				s[j] = s[j]*w + kv
			}
		}
	}
	groupNorm(y, lw.lnXW, lw.lnXB, heads)
	lw.attO.MulVec(buf.AttO, y)
}
