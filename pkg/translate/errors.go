package translate

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// ErrExhausted reports that every configured credential failed. The last
// observed attempt error is wrapped alongside it.
var ErrExhausted = errors.New("all translation credentials exhausted")

// kind is the retry classification of one failed translate attempt.
type kind int

const (
	// kindPermanent stops retrying the credential and rotates immediately.
	kindPermanent kind = iota
	// kindRateLimited sleeps the suggested or backoff delay, then retries
	// the same credential.
	kindRateLimited
	// kindTransient sleeps a linear backoff, then retries the same
	// credential.
	kindTransient
)

var retryAfterPattern = regexp.MustCompile(`(?i)retry in\s+([\d.]+)s`)

// classify maps an attempt error onto the retry taxonomy. The structured
// openai.Error status code is authoritative; free-text matching is the
// fallback for errors that reach us without one.
func classify(err error) kind {
	if err == nil {
		return kindPermanent
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return kindRateLimited
		case apiErr.StatusCode >= 500:
			return kindTransient
		default:
			return kindPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return kindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return kindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "quota exceeded"),
		strings.Contains(msg, "too many requests"):
		return kindRateLimited
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "temporar"),
		has5xxToken(msg):
		return kindTransient
	default:
		return kindPermanent
	}
}

// retryDelay extracts the backend's suggested wait from a "retry in <n>s"
// message. Best effort only; zero means no suggestion.
func retryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	match := retryAfterPattern.FindStringSubmatch(err.Error())
	if match == nil {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(match[1], 64)
	if parseErr != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func has5xxToken(msg string) bool {
	for i := 0; i+2 < len(msg); i++ {
		if msg[i] == '5' && isDigit(msg[i+1]) && isDigit(msg[i+2]) {
			if i > 0 && (isDigit(msg[i-1]) || msg[i-1] == '.') {
				continue
			}
			if i+3 < len(msg) && isDigit(msg[i+3]) {
				continue
			}
			return true
		}
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
