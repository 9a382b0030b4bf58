package cdpcontrol

import "fmt"

const (
	CodeValidation     = "VALIDATION"
	CodeTabNotFound    = "TAB_NOT_FOUND"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// TabInfo describes a page tab mapped from a browser target.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Hostname string `json:"hostname"`
}

// Style injection timings accepted by InsertCSS.
const (
	RunAtDocumentStart = "document_start"
	RunAtDocumentEnd   = "document_end"
	RunAtDocumentIdle  = "document_idle"
)

// Style origins accepted by InsertCSS.
const (
	CSSOriginUser   = "user"
	CSSOriginAuthor = "author"
)

// styleInjection is remembered per tab so a fresh session can replay it.
type styleInjection struct {
	CSS    string
	Origin string
	RunAt  string
}
