// Package protoerr defines the stable error-kind identifiers carried on
// result lines of the vaultline wire protocol, plus the retry bound
// applied to authorize(). Numeric assignment is fixed within this module
// so that a code surviving a version upgrade still means the same thing.
package protoerr

import "fmt"

// Kind is the stable identifier placed in a result line's errorCode field.
type Kind uint16

const (
	None Kind = iota
	ExpectedParameter
	Parse
	InvalidStorage
	InsufficientMemory
	InvalidData
	NetworkTimeout
	NetworkSend
	NetworkReceive
	Disconnected
	InvalidSshPassword
	NoSshPassword
	InvalidResponse
	StillNotImplemented
	Aborted
)

var names = map[Kind]string{
	None:                "none",
	ExpectedParameter:   "expectedParameter",
	Parse:               "parse",
	InvalidStorage:      "invalidStorage",
	InsufficientMemory:  "insufficientMemory",
	InvalidData:         "invalidData",
	NetworkTimeout:      "networkTimeout",
	NetworkSend:         "networkSend",
	NetworkReceive:      "networkReceive",
	Disconnected:        "disconnected",
	InvalidSshPassword:  "invalidSshPassword",
	NoSshPassword:       "noSshPassword",
	InvalidResponse:     "invalidResponse",
	StillNotImplemented: "stillNotImplemented",
	Aborted:             "aborted",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// Error wraps a Kind with a human-readable payload, the form carried on
// result lines and surfaced to callers of ExecuteCommand/WaitResult.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a protocol Error for the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// MaxPasswordRequests bounds authorize() retries against the
// candidate-password sequence (spec §7, §9 open question 3).
const MaxPasswordRequests = 5
