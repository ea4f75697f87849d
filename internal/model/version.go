package model

import (
	"errors"
	"fmt"
)

// Version is the RWKV architecture generation. The set is closed: every
// loader and builder switches over exactly these four values.
type Version uint8

const (
	V4 Version = 4
	V5 Version = 5
	V6 Version = 6
	V7 Version = 7
)

var ErrUnknownVersion = errors.New("model: unknown version")

func (v Version) String() string {
	switch v {
	case V4:
		return "v4"
	case V5:
		return "v5"
	case V6:
		return "v6"
	case V7:
		return "v7"
	default:
		return fmt.Sprintf("Version(%d)", uint8(v))
	}
}

func (v Version) Valid() bool {
	return v >= V4 && v <= V7
}

// SupportsHooks reports whether the extended hook table applies to v.
func (v Version) SupportsHooks() bool {
	return v == V6 || v == V7
}

// ParseVersion accepts either the numeric generation or the "vN" form.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "4", "v4", "V4":
		return V4, nil
	case "5", "v5", "V5":
		return V5, nil
	case "6", "v6", "V6":
		return V6, nil
	case "7", "v7", "V7":
		return V7, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
}
