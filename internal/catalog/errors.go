// internal/catalog/errors.go
package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidItem       = errors.New("invalid item")
	ErrEmptyKey          = errors.New("empty unique key")
	ErrDuplicateKey      = errors.New("duplicate unique key")
	ErrNotFound          = errors.New("item not found")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrDesync            = errors.New("collection and index out of sync")
	ErrAlreadyBorrowed   = errors.New("copy already borrowed")
	ErrNotBorrowed       = errors.New("copy not borrowed")
	ErrWrongKind         = errors.New("operation not supported by item kind")
)

// DesyncError reports a removal where the ordered collection and the index
// disagreed about membership. Recover with Library.Rebuild.
type DesyncError struct {
	ISBN         string
	InCollection bool
	InIndex      bool
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("%s: isbn %q removed from collection=%t index=%t",
		ErrDesync, e.ISBN, e.InCollection, e.InIndex)
}

func (e *DesyncError) Is(target error) bool {
	return target == ErrDesync
}
