package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"discussion-facilitator/backend/conversation/models"
)

// Request is everything the facilitator sees for one turn
type Request struct {
	History       []models.Message
	ActiveMembers []string
	Topic         string
}

// Reply is the facilitator's answer. NoResponse means it chose to stay quiet.
type Reply struct {
	Text       string
	NoResponse bool
}

// Facilitator produces one facilitator turn from the discussion so far
type Facilitator interface {
	Invoke(ctx context.Context, req Request) (Reply, error)
}

// ErrNoChoices is returned when the completion service answers without a message
var ErrNoChoices = errors.New("completion returned no choices")

// RemoteError is any failure of the completion service: transport, timeout,
// quota or an open circuit
type RemoteError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("facilitator %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("facilitator %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NewRemoteError wraps err, keeping an existing RemoteError as is
func NewRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return err
	}
	return &RemoteError{Op: op, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NoResponseMarker is what the prompt asks the model to answer when the
// group does not need a facilitator turn
const NoResponseMarker = "NO RESPONSE"

var markerTrim = regexp.MustCompile(`^[\s"'*.]+|[\s"'*.]+$`)

// ParseReply turns raw completion text into a Reply
func ParseReply(text string) Reply {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(markerTrim.ReplaceAllString(trimmed, ""), NoResponseMarker) {
		return Reply{NoResponse: true}
	}
	return Reply{Text: trimmed}
}
