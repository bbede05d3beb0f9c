package protocol

// Error kinds. Authorization failures on a conversation render with the
// same message as a missing conversation so that non-members cannot
// probe for existence.
const (
	KindValidation    = "validation"
	KindAuthorization = "authorization"
	KindNotFound      = "not_found"
	KindPersistence   = "persistence"
	KindTransient     = "transient"
)

// Stable client-visible error strings. Clients match on these.
const (
	MsgInvalidPayload       = "invalid message payload"
	MsgImpersonation        = "sender does not match authenticated user"
	MsgConversationNotFound = "conversation not found"
	MsgMessageNotFound      = "message not found"
	MsgUsersNotFound        = "referenced users not found"
	MsgInvalidParticipant   = "sender is not a participant of this direct conversation"
	MsgStoreFailure         = "failed to store message"
	MsgProcessingFailure    = "message processing failed"
	MsgUnknownEvent         = "unknown event"
)

// Error is surfaced to the originating connection as an err payload.
// Data carries the offending input back to the client; it is never sent
// to other participants.
type Error struct {
	Kind    string `json:"-"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func Validation(message string, data any) *Error {
	return &Error{Kind: KindValidation, Message: message, Data: data}
}

func Forbidden(message string, data any) *Error {
	return &Error{Kind: KindAuthorization, Message: message, Data: data}
}

func NotFound(message string, data any) *Error {
	return &Error{Kind: KindNotFound, Message: message, Data: data}
}

func Persistence(message string, data any) *Error {
	return &Error{Kind: KindPersistence, Message: message, Data: data}
}

func Transient(message string, data any) *Error {
	return &Error{Kind: KindTransient, Message: message, Data: data}
}
