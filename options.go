package producer

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// =============================================================================
// Client Options
// =============================================================================

type clientConfig struct {
	httpClient  *http.Client
	baseURL     string
	retryPolicy *RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithHTTPClient sets a custom HTTP client.
// If not set, a default client with sensible timeouts is used.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithBaseURL sets a base URL that will be prepended to stream paths.
// This is optional; you can also use full URLs when calling Client.Stream().
func WithBaseURL(url string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.baseURL = url
	}
}

// WithRetryPolicy sets the retry policy for transient errors.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(cfg *clientConfig) {
		cfg.retryPolicy = &p
	}
}

// RetryPolicy configures retry behavior for transient errors.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts.
	// Default is 3.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	// Default is 100ms.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default is 10s.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default is 2.0.
	Multiplier float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// =============================================================================
// Create Options
// =============================================================================

type createConfig struct {
	contentType string
	ttl         time.Duration
	expiresAt   time.Time
	initialData []byte
	headers     map[string]string
}

// CreateOption configures a Create operation.
type CreateOption func(*createConfig)

// WithContentType sets the stream's content type.
// Default is "application/octet-stream".
func WithContentType(ct string) CreateOption {
	return func(cfg *createConfig) {
		cfg.contentType = ct
	}
}

// WithTTL sets the stream's time-to-live.
// Mutually exclusive with WithExpiresAt.
func WithTTL(d time.Duration) CreateOption {
	return func(cfg *createConfig) {
		cfg.ttl = d
	}
}

// WithExpiresAt sets the stream's absolute expiry time.
// Mutually exclusive with WithTTL.
func WithExpiresAt(t time.Time) CreateOption {
	return func(cfg *createConfig) {
		cfg.expiresAt = t
	}
}

// WithInitialData sets initial data to write when creating the stream.
func WithInitialData(data []byte) CreateOption {
	return func(cfg *createConfig) {
		cfg.initialData = data
	}
}

// WithCreateHeaders sets custom headers for the create request.
func WithCreateHeaders(headers map[string]string) CreateOption {
	return func(cfg *createConfig) {
		cfg.headers = headers
	}
}

// =============================================================================
// Append Options
// =============================================================================

type appendConfig struct {
	seq     string
	ifMatch string
	headers map[string]string
}

// AppendOption configures an Append operation.
type AppendOption func(*appendConfig)

// WithSeq sets the sequence number for writer coordination.
// Sequence numbers must be strictly increasing (lexicographically).
// If a lower sequence is sent, the server returns 409 Conflict.
func WithSeq(seq string) AppendOption {
	return func(cfg *appendConfig) {
		cfg.seq = seq
	}
}

// WithIfMatch sets an ETag for optimistic concurrency control.
// The append will fail with 412 Precondition Failed if the ETag doesn't match.
func WithIfMatch(etag string) AppendOption {
	return func(cfg *appendConfig) {
		cfg.ifMatch = etag
	}
}

// WithAppendHeaders sets custom headers for the append request.
func WithAppendHeaders(headers map[string]string) AppendOption {
	return func(cfg *appendConfig) {
		cfg.headers = headers
	}
}

// =============================================================================
// Head Options
// =============================================================================

type headConfig struct {
	headers map[string]string
}

// HeadOption configures a Head operation.
type HeadOption func(*headConfig)

// WithHeadHeaders sets custom headers for the head request.
func WithHeadHeaders(headers map[string]string) HeadOption {
	return func(cfg *headConfig) {
		cfg.headers = headers
	}
}

// =============================================================================
// Delete Options
// =============================================================================

type deleteConfig struct {
	headers map[string]string
}

// DeleteOption configures a Delete operation.
type DeleteOption func(*deleteConfig)

// WithDeleteHeaders sets custom headers for the delete request.
func WithDeleteHeaders(headers map[string]string) DeleteOption {
	return func(cfg *deleteConfig) {
		cfg.headers = headers
	}
}

// =============================================================================
// Idempotent Producer Observability Options
// =============================================================================

// IdempotentProducerOption configures observability hooks for an
// IdempotentProducer that don't belong in the plain IdempotentProducerConfig
// value (itself part of the protocol's documented configuration surface).
type IdempotentProducerOption func(*producerObsConfig)

type producerObsConfig struct {
	logger   *zap.Logger
	registry prometheus.Registerer
	onError  func(error)
}

// WithLogger attaches a zap logger to the producer. Batch lifecycle events
// (seal, gap-wait, auto-claim, restart, terminal failure) are logged at
// Debug/Info/Warn/Error. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) IdempotentProducerOption {
	return func(cfg *producerObsConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithMetricsRegisterer registers the producer's Prometheus collectors
// (producer_batches_total, producer_batch_bytes, producer_inflight,
// producer_gap_waits_total, producer_autoclaims_total) against reg.
// If unset, metrics are collected in-process but never exported.
func WithMetricsRegisterer(reg prometheus.Registerer) IdempotentProducerOption {
	return func(cfg *producerObsConfig) {
		cfg.registry = reg
	}
}

// WithOnError registers the construction-time error sink required by a
// fire-and-forget producer: callers that never await AppendAsync still
// learn about a batch's terminal failure, exactly once per failed batch.
func WithOnError(fn func(error)) IdempotentProducerOption {
	return func(cfg *producerObsConfig) {
		cfg.onError = fn
	}
}
