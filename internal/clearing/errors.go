package clearing

import "errors"

var (
	ErrUnknownDecisionKind = errors.New("unknown decision kind")
	ErrUnknownSkipOption   = errors.New("unknown skip option")
	ErrNodeNotFound        = errors.New("tree node not found")
	ErrTreeCycle           = errors.New("tree parent cycle")
	ErrStoreWrite          = errors.New("store write failed")
)
