package service

import "errors"

var (
	ErrEmptyItemID       = errors.New("mutation has no item id")
	ErrEmptyListID       = errors.New("mutation has no list id")
	ErrUnknownType       = errors.New("unknown mutation type")
	ErrMissingPayload    = errors.New("mutation type requires a payload")
	ErrNoChangedFields   = errors.New("update mutation lists no changed fields")
	ErrUnknownField      = errors.New("changed field is not an item field")
	ErrQueuePaused       = errors.New("sync queue is paused")
	ErrUnknownDecision   = errors.New("unknown resolution decision")
	ErrIncompleteVerdict = errors.New("field-by-field decision misses fields")

	ErrMissingConflictInfo = errors.New("conflict info carries no item state")
)
