package governance

import (
	"errors"

	"supernova/api/internal/routes"
)

var (
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrInvalidTransition = errors.New("proposal already decided")
	ErrNotApproved       = errors.New("proposal has no approved decision")
)

type ValidationError = routes.ValidationError

var invalid = routes.Invalid
