package engine

import "math"

// V4 state rows within a layer.
const (
	v4AttX = iota
	v4AA
	v4BB
	v4PP
	v4FfnX
)

func timeMixV4(b *Bundle, lw *layerWeights, buf *Buffer, st []float32, _ layerHooks) error {
	emb := b.w.info.NumEmb
	xs := b.scr.y
	tokenShift(xs, buf.AttX, row(st, v4AttX, emb))

	lw.attR.MulVec(buf.AttR, xs)
	lw.attK.MulVec(buf.AttK, xs)
	lw.attV.MulVec(buf.AttV, xs)

	aa, bb, pp := row(st, v4AA, emb), row(st, v4BB, emb), row(st, v4PP, emb)
	rwkv := b.scr.kk
	for i := range emb {
		k, v := float64(buf.AttK[i]), float64(buf.AttV[i])
		a, bv, p := float64(aa[i]), float64(bb[i]), float64(pp[i])
		decay := -math.Exp(float64(lw.timeDecay[i]))

		ww := float64(lw.timeFirst[i]) + k
		q := math.Max(p, ww)
		e1, e2 := math.Exp(p-q), math.Exp(ww-q)
		wkv := (e1*a + e2*v) / (e1*bv + e2)
		rwkv[i] = sigmoid(buf.AttR[i]) * float32(wkv)

		ww = decay + p
		q = math.Max(ww, k)
		e1, e2 = math.Exp(ww-q), math.Exp(k-q)
		aa[i] = float32(e1*a + e2*v)
		bb[i] = float32(e1*bv + e2)
		pp[i] = float32(q)
	}
	lw.attO.MulVec(buf.AttO, rwkv)
	return nil
}
