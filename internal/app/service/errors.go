package service

import "errors"

var (
	// ErrInvalidInput - пустой матчап или голос, либо некорректное тело запроса.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable - хранилище не ответило или не смогло сохранить данные.
	ErrStoreUnavailable = errors.New("store unavailable")
)
