package storekit

import (
	"errors"
	"strings"
)

// Common storage errors. Every *Error matches the sentinel of its kind
// through errors.Is.
var (
	ErrUnexpected        = errors.New("unexpected backend response")
	ErrNotExist          = errors.New("file does not exist")
	ErrExist             = errors.New("file already exists")
	ErrPermission        = errors.New("permission denied")
	ErrNotDir            = errors.New("not a directory")
	ErrIsDir             = errors.New("is a directory")
	ErrNotEmpty          = errors.New("directory not empty")
	ErrNotSupported      = errors.New("operation not supported")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrConditionNotMatch = errors.New("condition not match")
	ErrReadOnly          = errors.New("storage is read-only")
	ErrNoSpace           = errors.New("no space left on device")
)

// ErrorKind classifies an Error.
type ErrorKind uint8

const (
	// KindUnexpected is a response the backend should never have produced.
	KindUnexpected ErrorKind = iota
	KindUnsupported
	KindConfigInvalid
	KindNotFound
	KindPermissionDenied
	KindIsADirectory
	KindNotADirectory
	KindAlreadyExists
	KindConditionNotMatch
	KindReadOnly
	KindNoSpace
	KindNotEmpty
)

var kindInfo = [...]struct {
	name     string
	sentinel error
}{
	KindUnexpected:        {"Unexpected", ErrUnexpected},
	KindUnsupported:       {"Unsupported", ErrNotSupported},
	KindConfigInvalid:     {"ConfigInvalid", ErrConfigInvalid},
	KindNotFound:          {"NotFound", ErrNotExist},
	KindPermissionDenied:  {"PermissionDenied", ErrPermission},
	KindIsADirectory:      {"IsADirectory", ErrIsDir},
	KindNotADirectory:     {"NotADirectory", ErrNotDir},
	KindAlreadyExists:     {"AlreadyExists", ErrExist},
	KindConditionNotMatch: {"ConditionNotMatch", ErrConditionNotMatch},
	KindReadOnly:          {"ReadOnly", ErrReadOnly},
	KindNoSpace:           {"NoSpace", ErrNoSpace},
	KindNotEmpty:          {"NotEmpty", ErrNotEmpty},
}

func (k ErrorKind) String() string {
	if int(k) < len(kindInfo) {
		return kindInfo[k].name
	}
	return "Unknown"
}

// Sentinel returns the package level error matched by errors.Is for this kind.
func (k ErrorKind) Sentinel() error {
	if int(k) < len(kindInfo) {
		return kindInfo[k].sentinel
	}
	return ErrUnexpected
}

// KV is one key/value pair of error context. Order of insertion is kept.
type KV struct {
	Key   string
	Value string
}

// Error is the error type returned by accessors and layers.
type Error struct {
	Kind      ErrorKind
	Message   string
	Operation Operation

	context []KV
	source  error
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// PathErr builds the error drivers return for a failed call on path.
// The message defaults to the sentinel text of kind.
func PathErr(kind ErrorKind, op Operation, path string, source error) *Error {
	return NewError(kind, kind.Sentinel().Error()).
		WithOperation(op).
		WithContext("path", path).
		WithSource(source)
}

// WithOperation sets the operation that failed.
func (e *Error) WithOperation(op Operation) *Error {
	e.Operation = op
	return e
}

// WithContext appends a key/value pair.
func (e *Error) WithContext(key, value string) *Error {
	e.context = append(e.context, KV{Key: key, Value: value})
	return e
}

// WithSource records the underlying cause.
func (e *Error) WithSource(err error) *Error {
	e.source = err
	return e
}

// Context returns the first value recorded under key.
func (e *Error) Context(key string) (string, bool) {
	for _, kv := range e.context {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// ContextPairs returns a copy of the context in insertion order.
func (e *Error) ContextPairs() []KV {
	out := make([]KV, len(e.context))
	copy(out, e.context)
	return out
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Operation != OpUnknown {
		b.WriteString(" (")
		b.WriteString(e.Operation.String())
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.context) > 0 {
		b.WriteString(", context: {")
		for i, kv := range e.context {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(kv.Key)
			b.WriteString(": ")
			b.WriteString(kv.Value)
		}
		b.WriteString("}")
	}
	if e.source != nil {
		b.WriteString(", source: ")
		b.WriteString(e.source.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.source
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsNotExist reports whether an error indicates that a file or directory
// does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsExist reports whether an error indicates that a file or directory
// already exists
func IsExist(err error) bool {
	return errors.Is(err, ErrExist)
}

// IsPermission reports whether an error indicates that permission is denied
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsUnexpected reports whether a backend returned something it never should.
func IsUnexpected(err error) bool {
	return errors.Is(err, ErrUnexpected)
}

// IsNotSupported reports whether the accessor lacks the requested capability.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
