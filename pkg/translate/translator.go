// Package translate performs one translation call against a chat-completions
// backend, rotating across configured credentials, throttling globally, and
// retrying transient and rate-limit failures.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lingorelay/pkg/config"
)

// Client is one credential-bound translation backend.
type Client interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ClientFactory builds a backend client for one API key.
type ClientFactory func(apiKey string) Client

// Translator rotates translation calls across N credentials. The rotation
// pointer advances only on success, so a failing credential at the front of
// the list is retried on every call, bounded by the per-call retry budget.
type Translator struct {
	factory ClientFactory
	log     *slog.Logger

	mu               sync.Mutex
	clients          []Client
	model            string
	minInterval      time.Duration
	timeout          time.Duration
	maxRetriesPerKey int
	keyIndex         int
	nextAllowedAt    time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a translator from the runtime configuration. A nil factory uses
// the OpenAI-backed client.
func New(cfg *config.Config, factory ClientFactory, log *slog.Logger) *Translator {
	if factory == nil {
		factory = newOpenAIClient
	}
	if log == nil {
		log = slog.Default()
	}

	t := &Translator{
		factory: factory,
		log:     log.With("component", "translate"),
		now:     time.Now,
		sleep:   sleepContext,
	}
	t.Apply(cfg)
	return t
}

// Apply swaps in a new configuration: clients are rebuilt per key and the
// rotation pointer resets. In-flight calls keep the parameters they started
// with.
func (t *Translator) Apply(cfg *config.Config) {
	clients := make([]Client, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		clients = append(clients, t.factory(key))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients = clients
	t.model = cfg.Model
	t.minInterval = cfg.MinInterval
	t.timeout = cfg.RequestTimeout
	t.maxRetriesPerKey = cfg.MaxRetriesPerKey
	t.keyIndex = 0
}

// Translate converts text from pair.Source to pair.Target. It tries each
// credential in rotation order with a per-credential retry budget, honoring
// the process-wide minimum inter-call interval before every attempt.
func (t *Translator) Translate(ctx context.Context, text string, pair config.Pair) (string, error) {
	t.mu.Lock()
	clients := t.clients
	model := t.model
	timeout := t.timeout
	maxRetries := t.maxRetriesPerKey
	start := t.keyIndex
	t.mu.Unlock()

	if len(clients) == 0 {
		return "", errors.New("no translation credentials configured")
	}

	prompt := buildPrompt(pair, text)

	var lastErr error
	for i := 0; i < len(clients); i++ {
		idx := (start + i) % len(clients)
		client := clients[idx]

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if err := t.awaitThrottle(ctx); err != nil {
				return "", err
			}

			result, err := t.attempt(ctx, client, model, prompt, timeout)
			if err == nil {
				t.noteSuccess(idx, len(clients))
				return strings.TrimSpace(result), nil
			}
			lastErr = err

			failure := classify(err)
			if failure == kindPermanent || attempt >= maxRetries {
				// Not retryable on this credential; rotate.
				break
			}

			wait := time.Duration(attempt+1) * time.Second
			if failure == kindRateLimited {
				if suggested := retryDelay(err); suggested > 0 {
					wait = suggested
				}
			}

			t.log.Warn("Translate attempt failed, retrying",
				"credential", fmt.Sprintf("%d/%d", idx+1, len(clients)),
				"attempt", fmt.Sprintf("%d/%d", attempt+1, maxRetries+1),
				"wait", wait,
				"error", err,
			)
			if err := t.sleep(ctx, wait); err != nil {
				return "", err
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("translation failed")
	}
	return "", fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// attempt performs one bounded backend call.
func (t *Translator) attempt(ctx context.Context, client Client, model, prompt string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return client.Generate(ctx, model, prompt)
}

// awaitThrottle suspends until the process-wide next-allowed time elapses.
func (t *Translator) awaitThrottle(ctx context.Context) error {
	t.mu.Lock()
	wait := t.nextAllowedAt.Sub(t.now())
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return t.sleep(ctx, wait)
}

// noteSuccess advances the rotation pointer past the credential that
// succeeded and arms the global throttle.
func (t *Translator) noteSuccess(idx, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextAllowedAt = t.now().Add(t.minInterval)
	t.keyIndex = (idx + 1) % total
}

func buildPrompt(pair config.Pair, text string) string {
	return strings.Join([]string{
		"You are a professional translation engine. You only translate.",
		fmt.Sprintf("Translate the following content from %s to %s.", pair.Source, pair.Target),
		"Rules:",
		"1) Output only the translation, no explanations.",
		"2) Preserve names, URLs, code, numbers, and proper nouns.",
		"3) If the input is not natural language in the source tongue, return it unchanged.",
		"",
		text,
	}, "\n")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
