package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeInvalidCoordinates ErrorCode = "INVALID_COORDINATES"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"

	ErrCodeEstimationUnavailable ErrorCode = "ESTIMATION_UNAVAILABLE"
	ErrCodeEstimationTimeout     ErrorCode = "ESTIMATION_TIMEOUT"
	ErrCodeMalformedEstimate     ErrorCode = "MALFORMED_ESTIMATE"
	ErrCodeOutOfRangeEstimate    ErrorCode = "OUT_OF_RANGE_ESTIMATE"

	ErrCodeMissingCredential         ErrorCode = "MISSING_CREDENTIAL"
	ErrCodePayoutSubmissionFailed    ErrorCode = "PAYOUT_SUBMISSION_FAILED"
	ErrCodePayoutConfirmationTimeout ErrorCode = "PAYOUT_CONFIRMATION_TIMEOUT"
	ErrCodeAlreadyClaimed            ErrorCode = "ALREADY_CLAIMED"
	ErrCodePolicyInactive            ErrorCode = "POLICY_INACTIVE"
	ErrCodePayoutInProgress          ErrorCode = "PAYOUT_IN_PROGRESS"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithStage records the pipeline stage that produced the error.
func (e *StandardError) WithStage(stage string) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata["stage"] = stage
	return e
}

// Stage returns the stage recorded by WithStage, or "".
func (e *StandardError) Stage() string {
	if s, ok := e.Metadata["stage"].(string); ok {
		return s
	}
	return ""
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewInvalidCoordinatesError(lat, lng float64) *StandardError {
	e := newError(ErrCodeInvalidCoordinates, "Coordinates are not a valid position", nil, false)
	e.Details = fmt.Sprintf("lat: %v, lng: %v", lat, lng)
	return e
}

func NewInvalidRequestError(details string) *StandardError {
	e := newError(ErrCodeInvalidRequest, "Claim request failed validation", nil, false)
	e.Details = details
	return e
}

func NewEstimationUnavailableError(err error) *StandardError {
	return newError(ErrCodeEstimationUnavailable, "Damage estimation service unavailable", err, true)
}

func NewEstimationTimeoutError(err error) *StandardError {
	return newError(ErrCodeEstimationTimeout, "Damage estimation timed out", err, true)
}

func NewMalformedEstimateError(reply string) *StandardError {
	e := newError(ErrCodeMalformedEstimate, "Damage estimate is not a bare integer", nil, false)
	e.Details = fmt.Sprintf("reply: %q", reply)
	return e
}

func NewOutOfRangeEstimateError(reply string) *StandardError {
	e := newError(ErrCodeOutOfRangeEstimate, "Damage estimate is outside 0-100", nil, false)
	e.Details = fmt.Sprintf("reply: %q", reply)
	return e
}

func NewMissingCredentialError(name string) *StandardError {
	e := newError(ErrCodeMissingCredential, "Payout signing credential is not configured", nil, false)
	e.Details = name
	return e
}

func NewPayoutSubmissionFailedError(err error) *StandardError {
	return newError(ErrCodePayoutSubmissionFailed, "Payout transaction failed", err, false)
}

func NewPayoutConfirmationTimeoutError(txHash string, err error) *StandardError {
	e := newError(ErrCodePayoutConfirmationTimeout, "Payout transaction not confirmed in time", err, false)
	e.Metadata = map[string]interface{}{"transactionHash": txHash}
	return e
}

func NewAlreadyClaimedError(policyID int64) *StandardError {
	e := newError(ErrCodeAlreadyClaimed, "Policy has already been paid out", nil, false)
	e.Details = fmt.Sprintf("policyId: %d", policyID)
	return e
}

func NewPolicyInactiveError(policyID int64) *StandardError {
	e := newError(ErrCodePolicyInactive, "Policy is not active", nil, false)
	e.Details = fmt.Sprintf("policyId: %d", policyID)
	return e
}

func NewPayoutInProgressError(policyID int64) *StandardError {
	e := newError(ErrCodePayoutInProgress, "Another payout for this policy is in progress", nil, false)
	e.Details = fmt.Sprintf("policyId: %d", policyID)
	return e
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// AsStandardError unwraps err to a *StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code carried by err, INTERNAL_ERROR otherwise.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidCoordinates:        "INVALID_COORDINATES",
	ErrCodeInvalidRequest:            "INVALID_REQUEST",
	ErrCodeEstimationUnavailable:     "ESTIMATION_UNAVAILABLE",
	ErrCodeEstimationTimeout:         "ESTIMATION_TIMEOUT",
	ErrCodeMalformedEstimate:         "MALFORMED_ESTIMATE",
	ErrCodeOutOfRangeEstimate:        "OUT_OF_RANGE_ESTIMATE",
	ErrCodeMissingCredential:         "MISSING_CREDENTIAL",
	ErrCodePayoutSubmissionFailed:    "PAYOUT_SUBMISSION_FAILED",
	ErrCodePayoutConfirmationTimeout: "PAYOUT_CONFIRMATION_TIMEOUT",
	ErrCodeAlreadyClaimed:            "ALREADY_CLAIMED",
	ErrCodePolicyInactive:            "POLICY_INACTIVE",
	ErrCodePayoutInProgress:          "PAYOUT_IN_PROGRESS",
}

// GetRetryCount returns how many job retries a code allows. Anything at or
// after payout submission is never retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeEstimationUnavailable:
		return 3
	case ErrCodeEstimationTimeout:
		return 1
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if stage := stdErr.Stage(); stage != "" {
		vars["failedStage"] = stage
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "COORDINATES") || strings.Contains(codeStr, "REQUEST"):
		return "VALIDATION"
	case strings.Contains(codeStr, "ESTIMAT"):
		return "ESTIMATION"
	case strings.Contains(codeStr, "PAYOUT") || strings.Contains(codeStr, "CLAIMED") ||
		strings.Contains(codeStr, "POLICY") || strings.Contains(codeStr, "CREDENTIAL"):
		return "LEDGER"
	default:
		return "OTHER"
	}
}
