// Package brokererr defines the error kinds raised across the publish and
// streaming cores, with enough structure for the HTTP boundary to map them
// to problem responses without string matching.
package brokererr

import "fmt"

// Kind identifies the class of failure. Kinds are compared with errors.Is,
// not by message text.
type Kind string

const (
	KindNullPartition      Kind = "NULL_PARTITION"
	KindNullOffset         Kind = "NULL_OFFSET"
	KindInvalidFormat      Kind = "INVALID_FORMAT"
	KindPartitionNotFound  Kind = "PARTITION_NOT_FOUND"
	KindUnavailable        Kind = "UNAVAILABLE"
	KindUnparseableCursor  Kind = "UNPARSEABLE_CURSOR"
	KindTopicCreation      Kind = "TOPIC_CREATION"
	KindTopicDeletion      Kind = "TOPIC_DELETION"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindEventPublishing    Kind = "EVENT_PUBLISHING"
	KindNoConnectionSlots  Kind = "NO_CONNECTION_SLOTS"
	KindIllegalScope       Kind = "ILLEGAL_SCOPE"
	KindNoSuchEventType    Kind = "NO_SUCH_EVENT_TYPE"
)

// defaultHTTPStatus is the default status code for a Kind when the caller does not
// override it with WithHTTPStatus. The streaming controller's mapping table
// (spec §4.4) takes precedence at the boundary; this is used where no more
// specific mapping applies.
var defaultHTTPStatus = map[Kind]int{
	KindNullPartition:      400,
	KindNullOffset:         400,
	KindInvalidFormat:      400,
	KindPartitionNotFound:  412,
	KindUnavailable:        412,
	KindUnparseableCursor:  400,
	KindTopicCreation:      500,
	KindTopicDeletion:      500,
	KindServiceUnavailable: 503,
	KindEventPublishing:    500,
	KindNoConnectionSlots:  429,
	KindIllegalScope:       403,
	KindNoSuchEventType:    404,
}

// Error is the broker's structured error type. It carries a machine
// comparable Kind, a human message, an optional wrapped cause, and an
// HTTP status override for the controller boundary.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	HTTPStatus int
	Topic      string
	Detail     string
}

// New creates an Error of the given kind with a message and optional cause.
func New(kind Kind, message string, cause error) *Error {
	status, ok := defaultHTTPStatus[kind]
	if !ok {
		status = 500
	}
	return &Error{
		Kind:       kind,
		Message:    message,
		Cause:      cause,
		HTTPStatus: status,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is compares by Kind so callers can use errors.Is(err, &brokererr.Error{Kind: ...})
// or the Of helper below without caring about message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithTopic attaches the topic the error concerns and returns the receiver
// for chaining.
func (e *Error) WithTopic(topic string) *Error {
	e.Topic = topic
	return e
}

// WithDetail attaches a free-form detail string (used for BatchItem.detail
// and problem-response "detail" fields) and returns the receiver.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithHTTPStatus overrides the default HTTP status for this error instance
// and returns the receiver.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// Of reports whether err is a brokererr.Error of the given kind.
func Of(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
