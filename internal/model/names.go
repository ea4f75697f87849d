package model

import "fmt"

// Tensor names follow the upstream RWKV checkpoint layout.
const (
	TensorEmb     = "emb.weight"
	TensorHead    = "head.weight"
	TensorLnOutW  = "ln_out.weight"
	TensorLnOutB  = "ln_out.bias"
	TensorLn0W    = "blocks.0.ln0.weight"
	TensorLn0B    = "blocks.0.ln0.bias"
	blockPrefix   = "blocks."
	blockNameForm = "blocks.%d.%s"
)

// Block returns the name of a per-layer tensor, e.g. Block(3, "att.key.weight").
func Block(layer int, suffix string) string {
	return fmt.Sprintf(blockNameForm, layer, suffix)
}

// Per-layer tensor suffixes shared by all generations.
const (
	LnAttW = "ln1.weight"
	LnAttB = "ln1.bias"
	LnFfnW = "ln2.weight"
	LnFfnB = "ln2.bias"

	AttKey        = "att.key.weight"
	AttValue      = "att.value.weight"
	AttReceptance = "att.receptance.weight"
	AttOutput     = "att.output.weight"

	FfnKey        = "ffn.key.weight"
	FfnValue      = "ffn.value.weight"
	FfnReceptance = "ffn.receptance.weight"
)

// Generation specific suffixes.
const (
	AttTimeDecay = "att.time_decay"
	AttTimeFirst = "att.time_first"
	AttTimeFaaaa = "att.time_faaaa"
	AttLnXW      = "att.ln_x.weight"
	AttLnXB      = "att.ln_x.bias"
	AttTimeMaaW1 = "att.time_maa_w1"
	AttTimeMixW1 = "att.time_mix_w1"
	AttDecayW1   = "att.time_decay_w1"
	AttDecayW2   = "att.time_decay_w2"
	AttW0        = "att.w0"
	AttA0        = "att.a0"
	AttRK        = "att.r_k"
)

// MatrixSuffixes lists the per-layer matrices subject to quantization.
var MatrixSuffixes = []string{
	AttReceptance, AttKey, AttValue, AttOutput,
	FfnKey, FfnValue, FfnReceptance,
}
