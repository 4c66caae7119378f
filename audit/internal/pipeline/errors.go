package pipeline

import "fmt"

// ErrorCode identifies a structured pipeline failure. Codes are part of
// the external contract: clients and replayed cache entries both carry
// them, so values never change meaning across releases.
type ErrorCode string

const (
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	CodeCaptureTimeout      ErrorCode = "CAPTURE_TIMEOUT"
	CodeCaptureBlocked      ErrorCode = "CAPTURE_BLOCKED"
	CodeFactsIncomplete     ErrorCode = "FACTS_INCOMPLETE"
	CodeScoringInvalidInput ErrorCode = "SCORING_INVALID_INPUT"
	CodeSynthesisFailed     ErrorCode = "SYNTHESIS_FAILED"
	CodeSynthesisPartial    ErrorCode = "SYNTHESIS_PARTIAL"
	CodeRenderFailed        ErrorCode = "RENDER_FAILED"
)

// StageError is one entry of a run's ordered error list. Critical marks
// the errors that abort the run; everything else degrades it. Recoverable
// entries are embedded in cached stage payloads so a cache replay
// reproduces the same degraded outcome as the original computation.
type StageError struct {
	Stage    string    `json:"stage"`
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Critical bool      `json:"critical,omitempty"`
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Code, e.Message)
}

func hasCritical(errs []StageError) bool {
	for _, e := range errs {
		if e.Critical {
			return true
		}
	}
	return false
}
