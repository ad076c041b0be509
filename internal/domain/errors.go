package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrUnknownAgent   = fmt.Errorf("unknown agent kind")
	ErrUnknownSubject = fmt.Errorf("unknown subject")
	ErrEmptyResponse  = fmt.Errorf("backend returned no content")
	ErrConfigLoad     = fmt.Errorf("failed to load configuration")
	ErrRunNotFound    = fmt.Errorf("run not found")

	// Audio errors.
	ErrAudioDevice = fmt.Errorf("audio device unavailable")
	ErrAudioFormat = fmt.Errorf("invalid audio payload")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrCircuitOpen     = fmt.Errorf("backend circuit open")

	// ErrOverloaded is the user-facing replacement for any backend rate
	// limit. Its message is shown verbatim.
	ErrOverloaded = errors.New("system overloaded, please try again in 5 seconds")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Dispatcher.Dispatch")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrOverloaded) || errors.Is(err, ErrCircuitOpen)
}

// TranslateError maps backend rate-limit failures to ErrOverloaded and
// returns every other error unchanged. A rate limit is recognised either by
// the ErrRateLimit sentinel or by a "429" status in the error text, since
// some backends only report the status code as a string.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOverloaded) {
		return ErrOverloaded
	}
	if errors.Is(err, ErrRateLimit) || strings.Contains(err.Error(), "429") {
		return ErrOverloaded
	}
	return err
}

// ErrorCode is a machine-parseable error category for monitoring and clients.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
	CodeUnknownAgent      ErrorCode = "UNKNOWN_AGENT"
	CodeUnknownSubject    ErrorCode = "UNKNOWN_SUBJECT"
	CodeEmptyResponse     ErrorCode = "EMPTY_RESPONSE"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeRunNotFound       ErrorCode = "RUN_NOT_FOUND"
	CodeAudioDevice       ErrorCode = "AUDIO_DEVICE"
	CodeAudioFormat       ErrorCode = "AUDIO_FORMAT"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeOverloaded        ErrorCode = "OVERLOADED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrTimeout:           CodeTimeout,
	ErrInvalidInput:      CodeInvalidInput,
	ErrProviderError:     CodeProviderError,
	ErrUnknownAgent:      CodeUnknownAgent,
	ErrUnknownSubject:    CodeUnknownSubject,
	ErrEmptyResponse:     CodeEmptyResponse,
	ErrConfigLoad:        CodeConfigLoad,
	ErrRunNotFound:       CodeRunNotFound,
	ErrAudioDevice:       CodeAudioDevice,
	ErrAudioFormat:       CodeAudioFormat,
	ErrGatewayAuthFailed: CodeGatewayAuth,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
	ErrContextOverflow:   CodeContextOverflow,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrCircuitOpen:       CodeCircuitOpen,
	ErrOverloaded:        CodeOverloaded,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Gateway auth wraps ErrAuthInvalid, so check the more specific one first.
	if errors.Is(err, ErrGatewayAuthFailed) {
		return CodeGatewayAuth
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
