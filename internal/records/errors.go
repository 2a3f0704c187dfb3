package records

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateHash = errors.New("document with this content hash already exists")
	ErrInvalidID     = errors.New("invalid record id")
	ErrReferenced    = errors.New("document is referenced by a conversation")
)
