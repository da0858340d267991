package registry

import "errors"

var (
	ErrDuplicateSymbol = errors.New("duplicate symbol")
	ErrUnknownSymbol   = errors.New("unknown symbol")
)
