package core

import (
	"errors"
	"fmt"
	"net/http"
)

type FailureKind int

const (
	// KindValidation covers missing or empty required input.
	KindValidation FailureKind = iota
	// KindEmptyDocument is a document that produced no chunks.
	KindEmptyDocument
	// KindEmbedding is a non-success response from the embedding service.
	KindEmbedding
	// KindEmptyEmbedding is a missing, empty or mis-shaped vector.
	KindEmptyEmbedding
	// KindUpstream is a non-success response from the chat service.
	KindUpstream
	// KindTransport is a connection-level fault reaching an upstream service.
	KindTransport
)

func (k FailureKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEmptyDocument:
		return "empty_document"
	case KindEmbedding:
		return "embedding"
	case KindEmptyEmbedding:
		return "empty_embedding"
	case KindUpstream:
		return "upstream"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const unreachableMessage = "Unable to reach the language model server."

// Failure is the structured error every RAG and chat operation reports.
// Status is the HTTP status the caller should answer with.
type Failure struct {
	Kind    FailureKind
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extracts a *Failure from err, if there is one in its chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}

func validationFailure(message string) *Failure {
	return &Failure{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

func transportFailure(err error) *Failure {
	return &Failure{Kind: KindTransport, Status: http.StatusInternalServerError, Message: unreachableMessage, Err: err}
}

func emptyEmbeddingFailure(message string, err error) *Failure {
	return &Failure{Kind: KindEmptyEmbedding, Status: http.StatusInternalServerError, Message: message, Err: err}
}
