package engine

import "math"

// v7DecayScale is exp(-0.5), the bound of the V7 per-channel decay.
const v7DecayScale = 0.606531

// timeMixV7 runs the delta-rule state update. State rows 1..hs hold the
// value index i, with column h*hs+j for key j of head h.
func timeMixV7(b *Bundle, lw *layerWeights, buf *Buffer, st []float32, hooks layerHooks) error {
	info := b.w.info
	emb, heads, hs := info.NumEmb, info.NumHead, info.HeadSize()
	b.attProject(lw, buf, st)

	for i := range emb {
		buf.AttA[i] = sigmoid(lw.a0[i])
	}
	if err := hooks.run(PostAttAdapt); err != nil {
		return err
	}
	for i := range emb {
		buf.AttW[i] = float32(math.Exp(-v7DecayScale * float64(sigmoid(lw.w0[i]))))
	}
	if err := hooks.run(PostAttControl); err != nil {
		return err
	}

	kk := b.scr.kk
	y := b.scr.decay
	for h := range heads {
		base := h * hs
		k := buf.AttK[base : base+hs]
		kkh := kk[base : base+hs]
		var norm float64
		for _, v := range k {
			norm += float64(v) * float64(v)
		}
		norm = math.Max(math.Sqrt(norm), 1e-12)
		for j, v := range k {
			kkh[j] = float32(float64(v) / norm)
		}

		r := buf.AttR[base : base+hs]
		a := buf.AttA[base : base+hs]
		w := buf.AttW[base : base+hs]
		var bonus float32
		for j := range hs {
			bonus += r[j] * k[j] * lw.rK[base+j]
		}
		for i := range hs {
			s := row(st, 1+i, emb)[base : base+hs]
			var sa float32
			for j := range hs {
				sa -= s[j] * kkh[j]
			}
			v := buf.AttV[base+i]
			var out float32
			for j := range hs {
				s[j] = s[j]*w[j] + sa*kkh[j]*a[j] + v*k[j]
				out += s[j] * r[j]
			}
			y[base+i] = out + bonus*v
		}
	}
	groupNorm(y, lw.lnXW, lw.lnXB, heads)
	lw.attO.MulVec(buf.AttO, y)
	return nil
}
