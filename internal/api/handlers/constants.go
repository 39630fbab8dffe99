package handlers

const (
	// History paging
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100 // Maximum page size for melody history

	// Response content types
	contentTypeMIDI = "audio/midi"

	// Server-sent event types
	eventTypeStep   = "step"
	eventTypeResult = "result"
	eventTypeDone   = "done"
	eventTypeError  = "error"
)
