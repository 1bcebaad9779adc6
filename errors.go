package main

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindBadRequest
	KindUnsupportedDocument
	KindStorage
	KindExtraction
	KindInference
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	case KindUnsupportedDocument:
		return "unsupported_document"
	case KindStorage:
		return "storage_error"
	case KindExtraction:
		return "extraction_error"
	case KindInference:
		return "inference_error"
	case KindPersistence:
		return "persistence_error"
	default:
		return "internal_error"
	}
}

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnsupportedDocument = errors.New("unsupported file type")
	ErrMalformedResponse   = errors.New("malformed inference response")
)

// PipelineError tags a failure with the step that produced it.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func pipelineError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or KindInternal for errors the pipeline did not tag.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
