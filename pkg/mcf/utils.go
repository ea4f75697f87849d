package mcf

// rangesOverlap reports whether half-open ranges [a0,a1) and [b0,b1) intersect.
func rangesOverlap(a0, a1, b0, b1 uint64) bool {
	return a0 < b1 && b0 < a1
}

func alignUp(n, a int64) int64 {
	if r := n % a; r != 0 {
		return n + a - r
	}
	return n
}
