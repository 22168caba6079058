package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrLocked       = errors.New("submission already submitted")
	ErrInvalidInput = errors.New("invalid input")
	ErrInUse        = errors.New("still referenced")
	// ErrCleanup reports that the database change committed but stored
	// files could not be removed.
	ErrCleanup = errors.New("file cleanup failed")
)

// InputError carries a message that can be shown to the user. It matches
// ErrInvalidInput.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(format string, args ...interface{}) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// notFound turns gorm's record-not-found into ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// constraint maps unique and foreign key violations reported by the
// database to errors the handlers can show.
func constraint(err error, duplicate, reference string) error {
	switch {
	case err == nil:
		return nil
	case isDuplicate(err) && duplicate != "":
		return invalid("%s", duplicate)
	case isForeignKey(err) && reference != "":
		return invalid("%s", reference)
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func isForeignKey(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "violates foreign key constraint")
}

func isCleanup(err error) bool {
	return errors.Is(err, ErrCleanup)
}
