package database

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidTier          = errors.New("invalid tier")
	ErrNotConfigured        = errors.New("database not configured")
)
