package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper looks
// for the constraint text in the error message. sqlite reports violations by
// column rather than constraint name, so the generic sqlite text also matches
// when columns is set.
func IsUniqueViolation(err error, constraintName string, columns ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		if len(columns) == 0 {
			return constraintName == ""
		}
		for _, col := range columns {
			if strings.Contains(msg, col) {
				return true
			}
		}
		return false
	}
	if constraintName == "" {
		return strings.Contains(msg, "duplicate key value")
	}
	return false
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
