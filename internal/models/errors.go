package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("claim not found")

	// ErrVersionConflict: версия в БД уехала между load и save.
	// Ретраибельно — вызывающий перечитывает и повторяет команду.
	ErrVersionConflict = errors.New("claim version conflict")
)

// ValidationError — команда некорректна сама по себе, до любых проверок состояния.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StateConflictError — guard перехода не выполнен для текущего состояния.
// Не ретраибельно той же командой; агрегат при этом не изменён.
type StateConflictError struct {
	Op     string
	Status ClaimStatus
	Reason string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s rejected (status %s): %s", e.Op, e.Status, e.Reason)
}
