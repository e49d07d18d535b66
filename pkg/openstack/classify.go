package openstack

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/transports"
)

// DefaultNotFoundPatterns are the client phrasings treated as a benign
// missing object.
var DefaultNotFoundPatterns = []string{
	`No \w+ with a name or ID of`,
	`Could not find \w+`,
	`\(HTTP 404\)`,
}

// DefaultAuthFailurePatterns are the client phrasings treated as a
// credential failure.
var DefaultAuthFailurePatterns = []string{
	`\(HTTP 401\)`,
	`HTTP 401`,
	`(?i)requires authentication`,
	`(?i)invalid authentication`,
	`(?i)could not authenticate`,
	`(?i)invalid user / password`,
}

// Classifier maps a failed client call to an error class. Unmatched
// failures are execution errors, never not-found.
type Classifier struct {
	notFound    []*regexp.Regexp
	authFailure []*regexp.Regexp
}

// NewClassifier compiles the default patterns plus the given extras.
func NewClassifier(extraNotFound, extraAuthFailure []string) (*Classifier, error) {
	notFound, err := compilePatterns(append(append([]string{}, DefaultNotFoundPatterns...), extraNotFound...))
	if err != nil {
		return nil, err
	}
	authFailure, err := compilePatterns(append(append([]string{}, DefaultAuthFailurePatterns...), extraAuthFailure...))
	if err != nil {
		return nil, err
	}
	return &Classifier{notFound: notFound, authFailure: authFailure}, nil
}

// MustNewClassifier is NewClassifier with the defaults only.
func MustNewClassifier() *Classifier {
	c, err := NewClassifier(nil, nil)
	if err != nil {
		panic(err)
	}
	return c
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, engine.NewConfigError(fmt.Sprintf("invalid error pattern %q", p), err).
				WithCode(engine.ErrCodeInvalidParameter)
		}
		out = append(out, re)
	}
	return out, nil
}

// Classify turns a non-zero exit into an AuthError, a NotFoundError
// wrapping the ExecutionError, or the ExecutionError itself.
func (c *Classifier) Classify(result *transports.Result, command string) error {
	message := strings.TrimSpace(result.Stderr)
	if message == "" {
		message = strings.TrimSpace(result.Stdout)
	}
	if message == "" {
		message = fmt.Sprintf("command exited with code %d", result.ExitCode)
	}

	execErr := engine.NewExecutionError(message, nil).
		WithDetail("stdout", result.Stdout).
		WithDetail("stderr", result.Stderr).
		WithDetail("exit_code", result.ExitCode).
		WithDetail("command", command)

	text := result.Stderr + "\n" + result.Stdout

	if matchAny(c.authFailure, text) {
		return engine.NewAuthError(message, execErr).WithDetail("command", command)
	}
	if matchAny(c.notFound, text) {
		return engine.NewNotFoundError(message, execErr).WithDetail("command", command)
	}
	return execErr
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
