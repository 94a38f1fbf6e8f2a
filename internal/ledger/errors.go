package ledger

import "errors"

var (
	ErrFindingNotFound = errors.New("finding not found")
	ErrItemNotFound    = errors.New("item not found")
)
