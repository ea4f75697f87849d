package model

import (
	"fmt"
	"strconv"
	"strings"
)

// TensorSet exposes the tensor names and shapes of a raw archive.
type TensorSet interface {
	TensorNames() []string
	TensorShape(name string) ([]int, bool)
}

// DetectInfo derives the model description from tensor names and shapes.
func DetectInfo(ts TensorSet) (Info, error) {
	emb, ok := ts.TensorShape(TensorEmb)
	if !ok || len(emb) != 2 {
		return Info{}, fmt.Errorf("%w: missing or malformed %s", ErrInvalidInfo, TensorEmb)
	}

	info := Info{
		NumVocab: emb[0],
		NumEmb:   emb[1],
		NumLayer: countLayers(ts.TensorNames()),
	}

	ffn, ok := ts.TensorShape(Block(0, FfnKey))
	if !ok || len(ffn) != 2 {
		return Info{}, fmt.Errorf("%w: missing or malformed %s", ErrInvalidInfo, Block(0, FfnKey))
	}
	info.NumHidden = ffn[0]

	info.Version = detectVersion(ts)

	heads, err := detectHeads(ts, info.Version)
	if err != nil {
		return Info{}, err
	}
	info.NumHead = heads

	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	return info, nil
}

func detectVersion(ts TensorSet) Version {
	has := func(suffix string) bool {
		_, ok := ts.TensorShape(Block(0, suffix))
		return ok
	}
	switch {
	case has(AttW0):
		return V7
	case has(AttTimeMaaW1), has(AttTimeMixW1), has(AttDecayW1):
		return V6
	case has(AttLnXW):
		return V5
	default:
		return V4
	}
}

func detectHeads(ts TensorSet, v Version) (int, error) {
	var candidates []string
	switch v {
	case V4:
		return 1, nil
	case V5, V6:
		candidates = []string{AttTimeFaaaa, AttTimeDecay}
	case V7:
		candidates = []string{AttRK}
	}
	for _, suffix := range candidates {
		if shape, ok := ts.TensorShape(Block(0, suffix)); ok && len(shape) >= 1 {
			return shape[0], nil
		}
	}
	return 0, fmt.Errorf("%w: cannot determine head count for %s", ErrInvalidInfo, v)
}

func countLayers(names []string) int {
	n := 0
	for _, name := range names {
		rest, ok := strings.CutPrefix(name, blockPrefix)
		if !ok {
			continue
		}
		idx, _, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		l, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		n = max(n, l+1)
	}
	return n
}
