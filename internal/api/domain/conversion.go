package domain

import (
	"errors"
)

var (
	ErrConversionNotFound = errors.New("conversion not found")
)
