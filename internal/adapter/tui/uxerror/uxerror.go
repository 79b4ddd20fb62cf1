// Package uxerror turns runtime errors into short, actionable messages for
// the terminal UI.
package uxerror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devspace/internal/adapter/tui/theme"
	"devspace/internal/domain"
)

// FriendlyError is a user-facing error with recovery hints.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error for the chat transcript.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

// Sentinel patterns come before substring patterns, and specific sentinels
// before the ones they wrap.
var patterns = []errorPattern{
	{
		match:   isErr(context.Canceled),
		produce: constantError("Cancelled", "The request was cancelled before the agent replied.", nil),
	},
	{
		match: isErr(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "The model provider rejected the request for sending too many.",
			[]string{"Wait a moment before retrying", "Lower agent.requests_per_minute in config"}),
	},
	{
		match: isErr(domain.ErrAuthBackend),
		produce: constantError("Provider Authentication Failed", "The model provider rejected the configured API key.",
			[]string{"Check OPENAI_API_KEY in your environment or .env file", "Verify the key has not expired"}),
	},
	{
		match: anyOf(isErr(domain.ErrTimeout), isErr(context.DeadlineExceeded)),
		produce: constantError("Request Timed Out", "The agent did not reply in time.",
			[]string{"Try a shorter prompt", "Raise agent.timeout in config"}),
	},
	{
		match: isErr(domain.ErrBackendFailure),
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Model Backend Failed",
				Message: detail(err),
				Hints:   []string{"Check that the provider endpoint is reachable", "Run with --debug for more details"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: isErr(domain.ErrUnknownAction),
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Unknown Action",
				Message: detail(err),
				Hints:   []string{"Type /help to see the supported actions"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: isErr(domain.ErrAgentNotFound),
		produce: constantError("Agent Not Found", "The agent this session talks to no longer exists.",
			[]string{"Restart the chat to create a new agent"}),
	},
	{
		match: anyOf(isErr(domain.ErrInvalidConfig), isErr(domain.ErrInvalidInput)),
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Invalid Input",
				Message: detail(err),
				Raw:     err.Error(),
			}
		},
	},
	{
		match: containsAny("connection refused", "no such host", "dial tcp"),
		produce: constantError("Connection Failed", "Could not reach the model provider.",
			[]string{"Check your network connection", "Verify llm.base_url in config"}),
	},
}

// Humanize converts err into a FriendlyError.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with --debug for more details"},
		Raw:     err.Error(),
	}
}

// detail prefers the Detail of a wrapped DomainError.
func detail(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func anyOf(fns ...func(error) bool) func(error) bool {
	return func(err error) bool {
		for _, fn := range fns {
			if fn(err) {
				return true
			}
		}
		return false
	}
}

// containsAny matches when the lowercased error text contains any substring.
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
