package mcf

import "errors"

var (
	ErrInvalidMagic       = errors.New("invalid MCF magic")
	ErrUnsupportedMajor   = errors.New("unsupported MCF major version")
	ErrUnsupportedPayload = errors.New("unsupported MCF section payload version")
	ErrCorruptFile        = errors.New("corrupt MCF file")
	ErrMissingSection     = errors.New("missing MCF section")
	ErrTensorNotFound     = errors.New("tensor not found in MCF")
)
