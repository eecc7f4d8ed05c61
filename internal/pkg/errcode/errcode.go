package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrInvalidStream
	ErrHistoryDisabled
	ErrStoreDisabled
	ErrConflict
)
