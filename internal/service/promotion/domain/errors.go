package domain

import "errors"

var (
	ErrPromotionNotFound  = errors.New("promotion not found")
	ErrInvalidRequest     = errors.New("invalid evaluation request")
	ErrCatalogUnavailable = errors.New("promotion catalog unavailable")
)
