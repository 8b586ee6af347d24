package repositories

import (
	"errors"
	"strings"

	"github.com/ashplayer/backend/internal/docstore"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrInvalidKey indicates a uid cannot be used as a field name inside a document.
	ErrInvalidKey = errors.New("invalid document key")
)

// checkKey rejects uids that the document store would read as a nested path.
func checkKey(key string) error {
	if key == "" || strings.Contains(key, ".") {
		return ErrInvalidKey
	}
	return nil
}

// translate maps document store sentinels onto repository sentinels and
// leaves every other error untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, docstore.ErrExists):
		return ErrConflict
	default:
		return err
	}
}
