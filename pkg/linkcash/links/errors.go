package links

import (
	"errors"
	"fmt"
)

var (
	ErrLinkNotFound        = errors.New("link not found")
	ErrCodeTaken           = errors.New("short code is already taken")
	ErrGenerationExhausted = errors.New("could not generate a unique short code")
	ErrInvalidURL          = errors.New("destination must be an absolute http or https URL")
	ErrInvalidCode         = errors.New("short code must be 3-50 letters, digits, hyphens or underscores")
	ErrLinkExpired         = errors.New("link has expired")
)

// ErrReservedCode is an ErrInvalidCode for codes that shadow server routes.
var ErrReservedCode = fmt.Errorf("%w: code is reserved", ErrInvalidCode)
