package domain

import "github.com/pkg/errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrDuplicateKey         = errors.New("record already exists")
	ErrNotFound             = errors.New("record is not found")
	ErrConfigurationMissing = errors.New("configuration template is missing")
	ErrReloadFailure        = errors.New("dns server reload failed")
	ErrPartialDerivation    = errors.New("could not derive reverse zone")
)
