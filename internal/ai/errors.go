package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
)

// Sentinels matched with errors.Is.
var (
	ErrTransient        = errors.New("transient backend error")
	ErrPermanent        = errors.New("permanent backend error")
	ErrReferenceExpired = errors.New("remote file reference expired")
)

// Class is the retry classification of a backend failure.
type Class int

const (
	ClassPermanent Class = iota
	ClassTransient
	ClassExpired
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassExpired:
		return "reference_expired"
	default:
		return "permanent"
	}
}

func (c Class) sentinel() error {
	switch c {
	case ClassTransient:
		return ErrTransient
	case ClassExpired:
		return ErrReferenceExpired
	default:
		return ErrPermanent
	}
}

// BackendError carries the classification of a provider failure together
// with the operation that produced it.
type BackendError struct {
	Class Class
	Op    string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

// Unwrap exposes both the class sentinel and the provider error.
func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class.sentinel()}
	}
	return []error{e.Class.sentinel(), e.Err}
}

func Transient(op string, err error) error { return &BackendError{Class: ClassTransient, Op: op, Err: err} }
func Permanent(op string, err error) error { return &BackendError{Class: ClassPermanent, Op: op, Err: err} }
func Expired(op string, err error) error   { return &BackendError{Class: ClassExpired, Op: op, Err: err} }

// ClassOf returns the class of an already classified error, or the class
// Classify would assign to it.
func ClassOf(err error) Class {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Class
	}
	switch {
	case errors.Is(err, ErrReferenceExpired):
		return ClassExpired
	case errors.Is(err, ErrTransient):
		return ClassTransient
	case errors.Is(err, ErrPermanent):
		return ClassPermanent
	}
	return classifyRaw(err)
}

// Classify wraps a raw provider error in a BackendError. Errors that are
// already classified keep their class. Unknown failures are permanent.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, ErrReferenceExpired) || errors.Is(err, ErrTransient) || errors.Is(err, ErrPermanent) {
		return err
	}
	return &BackendError{Class: classifyRaw(err), Op: op, Err: err}
}

var (
	transientStatus = regexp.MustCompile(`(?:^|\D)(408|429|500|502|503|504)(?:\D|$)`)
	permanentStatus = regexp.MustCompile(`(?:^|\D)(400|401|403|404|413|415|422)(?:\D|$)`)

	transientMarkers = []string{
		"rate limit", "rate_limit", "too many requests", "quota", "resource exhausted", "resource_exhausted",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded",
		"timeout", "timed out", "deadline exceeded", "connection reset", "connection refused",
		"no such host", "temporary failure", "unexpected eof", "broken pipe",
	}
	permanentMarkers = []string{
		"unauthorized", "forbidden", "invalid api key", "invalid_api_key", "authentication",
		"permission denied", "bad request", "invalid request", "invalid_request", "malformed",
		"unsupported", "content filter", "safety",
	}
)

func classifyRaw(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	if c, ok := classifySDK(err); ok {
		return c
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	// Transient signals win: rate-limit text routinely quotes limits like "400".
	msg := strings.ToLower(err.Error())
	if transientStatus.MatchString(msg) {
		return ClassTransient
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return ClassTransient
		}
	}
	if permanentStatus.MatchString(msg) {
		return ClassPermanent
	}
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return ClassPermanent
		}
	}
	return ClassPermanent
}

// classifySDK reads the status carried by the provider SDK error types.
func classifySDK(err error) (Class, bool) {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) && oaAPI.HTTPStatusCode > 0 {
		return classifyStatus(oaAPI.HTTPStatusCode), true
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) && oaReq.HTTPStatusCode > 0 {
		return classifyStatus(oaReq.HTTPStatusCode), true
	}
	var anReq *anthropic.RequestError
	if errors.As(err, &anReq) && anReq.StatusCode > 0 {
		return classifyStatus(anReq.StatusCode), true
	}
	var anAPI *anthropic.APIError
	if errors.As(err, &anAPI) {
		switch {
		case anAPI.IsRateLimitErr(), anAPI.IsOverloadedErr(), anAPI.IsApiErr():
			return ClassTransient, true
		case anAPI.Type != "":
			return ClassPermanent, true
		}
	}
	return 0, false
}

func classifyStatus(code int) Class {
	switch {
	case code == 408, code == 429, code >= 500:
		return ClassTransient
	default:
		return ClassPermanent
	}
}
