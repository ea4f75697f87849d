package engine

import "github.com/samcharles93/rwkvffi/internal/model"

// Model is one of ModelV4, ModelV5, ModelV6 or ModelV7. The set is closed.
type Model interface {
	Info() model.Info
	QuantPlan() model.QuantPlan
	// RescaleInterval is zero when activations are never halved.
	RescaleInterval() int
	// Export visits every weight under its checkpoint name, after
	// quantization and rescale.
	Export(fn func(name string, shape []int, data []float32) error) error

	weights() *weights
}

type (
	ModelV4 struct{ w *weights }
	ModelV5 struct{ w *weights }
	ModelV6 struct{ w *weights }
	ModelV7 struct{ w *weights }
)

func (m *ModelV4) weights() *weights { return m.w }
func (m *ModelV5) weights() *weights { return m.w }
func (m *ModelV6) weights() *weights { return m.w }
func (m *ModelV7) weights() *weights { return m.w }

func (m *ModelV4) Info() model.Info { return m.w.info }
func (m *ModelV5) Info() model.Info { return m.w.info }
func (m *ModelV6) Info() model.Info { return m.w.info }
func (m *ModelV7) Info() model.Info { return m.w.info }

func (m *ModelV4) QuantPlan() model.QuantPlan { return m.w.quant }
func (m *ModelV5) QuantPlan() model.QuantPlan { return m.w.quant }
func (m *ModelV6) QuantPlan() model.QuantPlan { return m.w.quant }
func (m *ModelV7) QuantPlan() model.QuantPlan { return m.w.quant }

func (m *ModelV4) RescaleInterval() int { return m.w.rescale }
func (m *ModelV5) RescaleInterval() int { return m.w.rescale }
func (m *ModelV6) RescaleInterval() int { return m.w.rescale }
func (m *ModelV7) RescaleInterval() int { return m.w.rescale }

func (m *ModelV4) Export(fn func(string, []int, []float32) error) error { return m.w.export(fn) }
func (m *ModelV5) Export(fn func(string, []int, []float32) error) error { return m.w.export(fn) }
func (m *ModelV6) Export(fn func(string, []int, []float32) error) error { return m.w.export(fn) }
func (m *ModelV7) Export(fn func(string, []int, []float32) error) error { return m.w.export(fn) }

type weights struct {
	info    model.Info
	quant   model.QuantPlan
	rescale int

	emb, head      Matrix
	ln0W, ln0B     []float32
	lnOutW, lnOutB []float32
	layers         []layerWeights
}

type layerWeights struct {
	ln1W, ln1B, ln2W, ln2B []float32

	attR, attK, attV, attO Matrix
	ffnK, ffnV, ffnR       Matrix

	// V4: decay and bonus. V5/V6: decay and time_faaaa.
	timeDecay, timeFirst []float32
	lnXW, lnXB           []float32
	decayW1, decayW2     Matrix
	w0, a0, rK           []float32
}

type vecField struct {
	name   string
	suffix string
	ptr    *[]float32
}

type matField struct {
	suffix     string
	ptr        *Matrix
	rows, cols int
	rescaled   bool
}

func (w *weights) globalVectors() []vecField {
	return []vecField{
		{name: model.TensorLn0W, ptr: &w.ln0W},
		{name: model.TensorLn0B, ptr: &w.ln0B},
		{name: model.TensorLnOutW, ptr: &w.lnOutW},
		{name: model.TensorLnOutB, ptr: &w.lnOutB},
	}
}

// fields lists the per-layer tensors of a version. Loading and export both
// walk this table.
func (lw *layerWeights) fields(info model.Info) ([]vecField, []matField) {
	emb, hidden := info.NumEmb, info.NumHidden
	vecs := []vecField{
		{suffix: model.LnAttW, ptr: &lw.ln1W},
		{suffix: model.LnAttB, ptr: &lw.ln1B},
		{suffix: model.LnFfnW, ptr: &lw.ln2W},
		{suffix: model.LnFfnB, ptr: &lw.ln2B},
	}
	mats := []matField{
		{suffix: model.AttReceptance, ptr: &lw.attR, rows: emb, cols: emb},
		{suffix: model.AttKey, ptr: &lw.attK, rows: emb, cols: emb},
		{suffix: model.AttValue, ptr: &lw.attV, rows: emb, cols: emb},
		{suffix: model.AttOutput, ptr: &lw.attO, rows: emb, cols: emb, rescaled: true},
		{suffix: model.FfnKey, ptr: &lw.ffnK, rows: hidden, cols: emb},
		{suffix: model.FfnValue, ptr: &lw.ffnV, rows: emb, cols: hidden, rescaled: true},
	}

	switch info.Version {
	case model.V4:
		vecs = append(vecs,
			vecField{suffix: model.AttTimeDecay, ptr: &lw.timeDecay},
			vecField{suffix: model.AttTimeFirst, ptr: &lw.timeFirst},
		)
	case model.V5, model.V6:
		vecs = append(vecs,
			vecField{suffix: model.AttTimeDecay, ptr: &lw.timeDecay},
			vecField{suffix: model.AttTimeFaaaa, ptr: &lw.timeFirst},
			vecField{suffix: model.AttLnXW, ptr: &lw.lnXW},
			vecField{suffix: model.AttLnXB, ptr: &lw.lnXB},
		)
	case model.V7:
		vecs = append(vecs,
			vecField{suffix: model.AttW0, ptr: &lw.w0},
			vecField{suffix: model.AttA0, ptr: &lw.a0},
			vecField{suffix: model.AttRK, ptr: &lw.rK},
			vecField{suffix: model.AttLnXW, ptr: &lw.lnXW},
			vecField{suffix: model.AttLnXB, ptr: &lw.lnXB},
		)
	}
	if info.Version == model.V6 {
		mats = append(mats,
			matField{suffix: model.AttDecayW1, ptr: &lw.decayW1, rows: emb},
			matField{suffix: model.AttDecayW2, ptr: &lw.decayW2, cols: emb},
		)
	}
	if info.Version != model.V7 {
		mats = append(mats, matField{suffix: model.FfnReceptance, ptr: &lw.ffnR, rows: emb, cols: emb})
	}
	return vecs, mats
}

func (w *weights) export(fn func(name string, shape []int, data []float32) error) error {
	emit := func(name string, m Matrix) error {
		return fn(name, []int{m.Rows, m.Cols}, m.Data)
	}
	if err := emit(model.TensorEmb, w.emb); err != nil {
		return err
	}
	if err := emit(model.TensorHead, w.head); err != nil {
		return err
	}
	for _, f := range w.globalVectors() {
		if err := fn(f.name, []int{len(*f.ptr)}, *f.ptr); err != nil {
			return err
		}
	}
	for l := range w.layers {
		vecs, mats := w.layers[l].fields(w.info)
		for _, f := range vecs {
			if err := fn(model.Block(l, f.suffix), []int{len(*f.ptr)}, *f.ptr); err != nil {
				return err
			}
		}
		for _, f := range mats {
			if err := emit(model.Block(l, f.suffix), *f.ptr); err != nil {
				return err
			}
		}
	}
	return nil
}
