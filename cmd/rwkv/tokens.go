package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseTokens reads token ids separated by commas or whitespace.
func parseTokens(s string) ([]uint32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]uint32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid token %q: %w", f, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

func formatTokens(tokens []uint32) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = strconv.FormatUint(uint64(t), 10)
	}
	return strings.Join(parts, " ")
}
