// Package service provides business logic for the application.
package service

import "errors"

// Service errors. Handlers map these to API error codes.
var (
	ErrMissingFields      = errors.New("required fields missing")
	ErrInvalidPassword    = errors.New("password too short")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidAPIKey      = errors.New("invalid api key")
	ErrKeyGeneration      = errors.New("could not generate a unique api key")

	ErrStockNotFound    = errors.New("stock not found")
	ErrStockExists      = errors.New("stock already exists")
	ErrMissingQuery     = errors.New("search query missing")
	ErrInvalidQuery     = errors.New("search query too short")
	ErrInvalidSort      = errors.New("invalid sort column")
	ErrInvalidPage      = errors.New("invalid page")
	ErrInvalidInterval  = errors.New("unsupported interval")
	ErrInvalidDateRange = errors.New("from is after to")
	ErrEmptyUpdate      = errors.New("no fields to update")
)
