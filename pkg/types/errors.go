package types

import "errors"

// Domain errors for type validation
var (
	// TOC entry errors
	ErrEmptySectionNumber = errors.New("section number cannot be empty")
	ErrEmptyTitle         = errors.New("title cannot be empty")
	ErrInvalidPage        = errors.New("document page must be >= 0")
	ErrInvalidLevel       = errors.New("level must be >= 0")

	// Scored result errors
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidComponentScore = errors.New("component scores must be between 0 and 1")
	ErrInvalidScore          = errors.New("score must be between 0 and 1000")
)
