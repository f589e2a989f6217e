package checkpoint

import "github.com/pkg/errors"

var (
	ErrPathEmpty       = errors.New("checkpoint store path cannot be empty")
	ErrConsumerEmpty   = errors.New("consumer name cannot be empty")
	ErrConsumerInvalid = errors.New("consumer name should contain only digits, letters, underscore and dash symbol")
	ErrPatternInvalid  = errors.New("consumer pattern is invalid")
)
