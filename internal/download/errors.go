package download

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineDownload marks a network or transfer failure inside the engine.
	ErrEngineDownload = errors.New("engine download failure")

	// ErrEngineExtraction marks a failure to resolve the URL to playable media.
	ErrEngineExtraction = errors.New("engine extraction failure")
)

// engineFailure carries the engine's own message while matching one of the sentinels.
type engineFailure struct {
	class  error
	detail string
}

func (e *engineFailure) Error() string { return e.detail }

func (e *engineFailure) Is(target error) bool { return target == e.class }

// DownloadFailure reports a transfer-stage failure with the engine's message.
func DownloadFailure(detail string) error {
	return &engineFailure{class: ErrEngineDownload, detail: detail}
}

// ExtractionFailure reports a resolution-stage failure with the engine's message.
func ExtractionFailure(detail string) error {
	return &engineFailure{class: ErrEngineExtraction, detail: detail}
}

// Kind classifies extraction failures.
type Kind string

const (
	KindDownload   Kind = "download"
	KindExtraction Kind = "extraction"
	KindUnexpected Kind = "unexpected"
)

// Message prefixes per kind
const (
	DownloadErrorPrefix   = "Download error: "
	ExtractorErrorPrefix  = "Extractor error: "
	UnexpectedErrorPrefix = "Unexpected error: "
)

// Error is the classified failure returned by Extract.
type Error struct {
	Kind    Kind
	Message string
	URL     string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify turns any engine error into a classified *Error.
func classify(url string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, ErrEngineExtraction):
		return &Error{Kind: KindExtraction, Message: ExtractorErrorPrefix + err.Error(), URL: url, Err: err}
	case errors.Is(err, ErrEngineDownload):
		return &Error{Kind: KindDownload, Message: DownloadErrorPrefix + err.Error(), URL: url, Err: err}
	default:
		return &Error{Kind: KindUnexpected, Message: UnexpectedErrorPrefix + err.Error(), URL: url, Err: err}
	}
}

// fromPanic reports a recovered panic as an unexpected failure.
func fromPanic(url string, r any) *Error {
	err := fmt.Errorf("%v", r)
	return &Error{Kind: KindUnexpected, Message: UnexpectedErrorPrefix + err.Error(), URL: url, Err: err}
}
