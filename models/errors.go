package models

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyClosed = errors.New("order already completed or cancelled")
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("not enough inventory")
	ErrCounterMissing     = errors.New("invoice counter not found")
)
