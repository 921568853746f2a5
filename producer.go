package producer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/streamkeep/producer/internal/batchenc"
	"github.com/streamkeep/producer/internal/obs"
	"github.com/streamkeep/producer/internal/seqcoord"
)

// Producer-specific wire headers.
const (
	headerProducerID          = "Producer-Id"
	headerProducerEpoch       = "Producer-Epoch"
	headerProducerSeq         = "Producer-Seq"
	headerProducerExpectedSeq = "Producer-Expected-Seq"
	headerProducerReceivedSeq = "Producer-Received-Seq"
	headerStreamClosed        = "Stream-Closed"
)

// IdempotentProducerConfig is the documented configuration surface for an
// IdempotentProducer. Build one with DefaultIdempotentProducerConfig and
// mutate fields, rather than a bare struct literal: a zero-valued LingerMs
// is a legitimate setting (disables the linger timer), so the constructor
// — not IdempotentProducer itself — is where "unset" gets turned into the
// documented default of 5ms.
type IdempotentProducerConfig struct {
	// ProducerID is the stable server-side dedup identity. Required.
	ProducerID string

	// Epoch is the starting epoch. Bump across restarts to fence a
	// previous instance of this producerId.
	Epoch int64

	// AutoClaim, when true, reacts to a 403 stale-epoch response by
	// claiming a new epoch and retrying instead of failing the batch.
	AutoClaim bool

	// MaxBatchBytes is the seal threshold, summed over encoded message
	// lengths before wrapping.
	MaxBatchBytes int

	// LingerMs is the max wait before sealing a partial batch. 0 disables
	// the timer entirely: a partial batch then only seals via
	// MaxBatchBytes or an explicit Flush/Close.
	LingerMs int

	// MaxInFlight caps the number of batches concurrently between
	// submission and completion.
	MaxInFlight int

	// Headers are extra transport headers attached to every POST, in
	// addition to the producer identity headers.
	Headers map[string]string
}

// DefaultIdempotentProducerConfig returns a config with every documented
// default applied, for the given required producerId.
func DefaultIdempotentProducerConfig(producerID string) IdempotentProducerConfig {
	return IdempotentProducerConfig{
		ProducerID:    producerID,
		Epoch:         0,
		AutoClaim:     false,
		MaxBatchBytes: 1 << 20,
		LingerMs:      5,
		MaxInFlight:   5,
	}
}

func (c IdempotentProducerConfig) validate() error {
	if c.ProducerID == "" {
		return &ConfigError{Field: "ProducerID", Reason: "must not be empty"}
	}
	if c.Epoch < 0 {
		return &ConfigError{Field: "Epoch", Reason: "must be >= 0"}
	}
	if c.MaxBatchBytes <= 0 {
		return &ConfigError{Field: "MaxBatchBytes", Reason: "must be > 0"}
	}
	if c.MaxInFlight <= 0 {
		return &ConfigError{Field: "MaxInFlight", Reason: "must be > 0"}
	}
	if c.LingerMs < 0 {
		return &ConfigError{Field: "LingerMs", Reason: "must be >= 0"}
	}
	return nil
}

// pendingMessage is one caller append awaiting its containing batch.
type pendingMessage struct {
	data []byte
	done chan struct{}
	err  error
}

// batchTask is a sealed group of pending messages sharing one
// (producerId, epoch, seq) identity. epoch/seq are mutated in place across
// retries triggered by auto-claim.
type batchTask struct {
	epoch    int64
	seq      int64
	bytes    int
	messages []*pendingMessage
}

func (b *batchTask) payloads() [][]byte {
	out := make([][]byte, len(b.messages))
	for i, m := range b.messages {
		out[i] = m.data
	}
	return out
}

// batchHandle lets Flush/Close wait for a sealed batch without the owner
// goroutine blocking on network I/O.
type batchHandle struct {
	done chan struct{}
	err  error
}

// sendJob pairs a sealed batch with the handle its sender resolves.
type sendJob struct {
	batch  *batchTask
	handle *batchHandle
}

// sendQueue is an unbounded FIFO of sealed batches awaiting dispatch. A
// single dispatcher drains it in seq order, acquiring the in-flight
// semaphore slot for each job before handing the actual network round trip
// off to its own goroutine. That keeps two things true at once: batches are
// dispatched to the transport in strict enqueue order (P4), and a
// gap-fenced batch can block on an earlier seq without ever holding a slot
// that earlier seq needs to run — it already has its own.
type sendQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*sendJob
	closed bool
}

func newSendQueue() *sendQueue {
	q := &sendQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends job to the tail. Never blocks: the caller is always the
// owner goroutine, which must not stall behind a slow dispatcher.
func (q *sendQueue) push(job *sendJob) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a job is available or the queue is closed.
func (q *sendQueue) pop() (*sendJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items = q.items[1:]
	return job, true
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// IdempotentProducer converts append(data) calls into pipelined, batched,
// exactly-once HTTP writes against a stream, with epoch-based fencing and
// server-coordinated deduplication. Safe for concurrent use.
//
// All mutable producer state ({pending, pendingBytes, nextSeq, epoch,
// closed, ...}) is owned by a single goroutine (run) driven by a command
// channel of closures; every public method round-trips through that
// goroutine so state mutation is always serialized, never across I/O.
type IdempotentProducer struct {
	stream *Stream
	cfg    IdempotentProducerConfig

	cmds chan func()
	done chan struct{}

	sendQ   *sendQueue
	sem     *semaphore.Weighted
	coord   *seqcoord.Coordinator
	logger  *zap.Logger
	metrics *obs.Metrics
	onError func(error)

	contentType string
	ctOnce      sync.Once

	closedObserved atomic.Bool
	closeOnce      sync.Once

	// owner-goroutine-only state below; touched only from within a cmd().
	epoch        int64
	nextSeq      int64
	epochClaimed bool
	closed       bool
	pending      []*pendingMessage
	pendingBytes int
	lingerGen    int64
	inflight     []*batchHandle
}

// IdempotentProducer constructs a producer bound to stream, validating cfg
// before any I/O: any config violation fails construction before any
// I/O" rule.
func (c *Client) IdempotentProducer(stream *Stream, cfg IdempotentProducerConfig, opts ...IdempotentProducerOption) (*IdempotentProducer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	obsCfg := &producerObsConfig{}
	for _, opt := range opts {
		opt(obsCfg)
	}
	logger := obsCfg.logger
	if logger == nil {
		logger = obs.NopLogger()
	}
	metrics := obs.NewMetrics(cfg.ProducerID)
	metrics.Register(obsCfg.registry)

	p := &IdempotentProducer{
		stream:  stream,
		cfg:     cfg,
		cmds:    make(chan func(), 64),
		done:    make(chan struct{}),
		sendQ:   newSendQueue(),
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		coord:   seqcoord.New(cfg.MaxInFlight),
		logger:  logger,
		metrics: metrics,
		onError: obsCfg.onError,
		epoch:   cfg.Epoch,
	}
	go p.run()
	go p.dispatchLoop()
	return p, nil
}

// dispatchLoop drains sendQ strictly in seq order, acquiring an in-flight
// slot for each job before the network round trip runs concurrently in its
// own goroutine. Exits once sendQ is closed (at producer close) and
// drained.
func (p *IdempotentProducer) dispatchLoop() {
	for {
		job, ok := p.sendQ.pop()
		if !ok {
			return
		}
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			// context.Background() never cancels; unreachable in practice.
			job.handle.err = err
			close(job.handle.done)
			continue
		}
		p.metrics.InFlight.Inc()
		go p.runBatch(job.batch, job.handle)
	}
}

func (p *IdempotentProducer) run() {
	for {
		select {
		case cmd := <-p.cmds:
			cmd()
		case <-p.done:
			return
		}
	}
}

type appendReply struct {
	msg *pendingMessage
	err error
}

// enqueue performs the in-memory bookkeeping half of an append: it never
// blocks on the network, only on owner-goroutine scheduling.
func (p *IdempotentProducer) enqueue(ctx context.Context, data []byte) (*pendingMessage, error) {
	select {
	case <-p.done:
		return nil, ErrProducerClosed
	default:
	}

	reply := make(chan appendReply, 1)
	cmd := func() {
		if p.closed {
			reply <- appendReply{err: ErrProducerClosed}
			return
		}

		msg := &pendingMessage{data: data, done: make(chan struct{})}
		p.pending = append(p.pending, msg)
		p.pendingBytes += len(data)

		if len(p.pending) == 1 && p.cfg.LingerMs > 0 {
			p.startLingerLocked()
		}
		if p.pendingBytes >= p.cfg.MaxBatchBytes {
			p.sealLocked()
		}

		reply <- appendReply{msg: msg}
	}

	select {
	case p.cmds <- cmd:
	case <-p.done:
		return nil, ErrProducerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Append enqueues data and waits for the containing batch to resolve,
// returning the batch's terminal error (shared by reference across every
// message in that batch) if any.
func (p *IdempotentProducer) Append(ctx context.Context, data []byte) error {
	msg, err := p.enqueue(ctx, data)
	if err != nil {
		return err
	}
	select {
	case <-msg.done:
		return msg.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AppendAsync enqueues data and returns as soon as it is buffered, without
// waiting for the containing batch to be sent. A later batch failure is
// reported only to the onError sink supplied via WithOnError, never to
// this call.
func (p *IdempotentProducer) AppendAsync(ctx context.Context, data []byte) error {
	_, err := p.enqueue(ctx, data)
	return err
}

// startLingerLocked arms a one-shot seal timer, tagged with the current
// generation so a stale timer firing after an early seal is a no-op.
// Must only be called from within a cmd() (owner goroutine).
func (p *IdempotentProducer) startLingerLocked() {
	p.lingerGen++
	gen := p.lingerGen
	d := time.Duration(p.cfg.LingerMs) * time.Millisecond
	time.AfterFunc(d, func() {
		select {
		case p.cmds <- func() {
			if p.lingerGen == gen {
				p.sealLocked()
			}
		}:
		case <-p.done:
		}
	})
}

// sealLocked seals the current buffer as a batch task, if non-empty, and
// launches its sender. Must only be called from within a cmd().
func (p *IdempotentProducer) sealLocked() *batchHandle {
	if len(p.pending) == 0 {
		return nil
	}

	batch := &batchTask{
		epoch:    p.epoch,
		seq:      p.nextSeq,
		bytes:    p.pendingBytes,
		messages: p.pending,
	}
	p.nextSeq++
	p.pending = nil
	p.pendingBytes = 0
	p.lingerGen++ // invalidate any armed linger timer

	handle := &batchHandle{done: make(chan struct{})}
	p.inflight = append(p.inflight, handle)

	p.metrics.BatchBytes.Observe(float64(batch.bytes))
	p.logger.Debug("batch sealed",
		zap.Int64("epoch", batch.epoch),
		zap.Int64("seq", batch.seq),
		zap.Int("bytes", batch.bytes),
		zap.Int("messages", len(batch.messages)),
	)

	p.sendQ.push(&sendJob{batch: batch, handle: handle})
	return handle
}

func (p *IdempotentProducer) snapshotInflightLocked() []*batchHandle {
	out := make([]*batchHandle, len(p.inflight))
	copy(out, p.inflight)
	return out
}

func (p *IdempotentProducer) pruneInflightLocked(h *batchHandle) {
	for i, e := range p.inflight {
		if e == h {
			p.inflight = append(p.inflight[:i], p.inflight[i+1:]...)
			return
		}
	}
}

// observeStreamClosedLocked reacts to the server reporting the stream
// closed: it flips the producer terminal, and fails every message still
// sitting in the unsealed buffer (messages already sealed into a batch are
// failed by that batch's own sender). Must only be called from a cmd().
func (p *IdempotentProducer) observeStreamClosedLocked() {
	wasClosed := p.closed
	p.closed = true
	p.closedObserved.Store(true)

	if len(p.pending) == 0 {
		return
	}
	drained := p.pending
	p.pending = nil
	p.pendingBytes = 0
	p.lingerGen++

	for _, m := range drained {
		m.err = ErrStreamClosed
		close(m.done)
	}
	if !wasClosed && p.onError != nil {
		p.onError(ErrStreamClosed)
	}
}

// Flush seals any partial batch and waits for every currently in-flight
// batch (including the one just sealed) to resolve, returning the first
// terminal error observed. Flush after Close is a no-op.
func (p *IdempotentProducer) Flush(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	reply := make(chan []*batchHandle, 1)
	cmd := func() {
		p.sealLocked()
		reply <- p.snapshotInflightLocked()
	}

	select {
	case p.cmds <- cmd:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	var dones []*batchHandle
	select {
	case dones = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstErr error
	for _, h := range dones {
		select {
		case <-h.done:
			if firstErr == nil && h.err != nil {
				firstErr = h.err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return firstErr
}

// Close marks the producer closed (rejecting all subsequent Append calls),
// performs a best-effort flush of any partial batch, and waits for every
// in-flight batch to finish before returning. Close always completes
// without error; a terminal error encountered while draining is still
// delivered to per-message awaiters and the onError sink, just not to the
// Close call itself. Idempotent: subsequent calls return nil immediately.
func (p *IdempotentProducer) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.doClose(ctx)
	})
	return nil
}

func (p *IdempotentProducer) doClose(ctx context.Context) {
	reply := make(chan []*batchHandle, 1)
	cmd := func() {
		p.closed = true
		p.sealLocked()
		reply <- p.snapshotInflightLocked()
	}

	select {
	case p.cmds <- cmd:
	case <-p.done:
		return
	}

	dones := <-reply
	for _, h := range dones {
		<-h.done
	}

	final := make(chan struct{})
	select {
	case p.cmds <- func() {
		close(p.done)
		close(final)
	}:
		<-final
	case <-p.done:
	}
	p.sendQ.close()
}

// Restart flushes pending work, then bumps the epoch and resets nextSeq to
// 0, fencing any earlier instance of this producerId still writing under
// the old epoch.
func (p *IdempotentProducer) Restart(ctx context.Context) error {
	if err := p.Flush(ctx); err != nil {
		p.logger.Warn("restart: flush observed an error before bumping epoch", zap.Error(err))
	}

	reply := make(chan error, 1)
	cmd := func() {
		if p.closed {
			reply <- ErrProducerClosed
			return
		}
		old := p.epoch
		p.epoch++
		p.nextSeq = 0
		p.epochClaimed = false
		p.coord.DropEpoch(old)
		p.logger.Info("producer restarted", zap.Int64("old_epoch", old), zap.Int64("new_epoch", p.epoch))
		reply <- nil
	}

	select {
	case p.cmds <- cmd:
	case <-p.done:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time snapshot of producer state for operational
// visibility, consolidating what would otherwise be several separate
// accessors into one round trip through the owner goroutine.
type Stats struct {
	Epoch        int64
	NextSeq      int64
	EpochClaimed bool
	InFlight     int
	PendingBytes int
	Closed       bool
}

// Stats returns a point-in-time snapshot of the producer's state.
func (p *IdempotentProducer) Stats() Stats {
	reply := make(chan Stats, 1)
	cmd := func() {
		reply <- Stats{
			Epoch:        p.epoch,
			NextSeq:      p.nextSeq,
			EpochClaimed: p.epochClaimed,
			InFlight:     len(p.inflight),
			PendingBytes: p.pendingBytes,
			Closed:       p.closed,
		}
	}
	select {
	case p.cmds <- cmd:
	case <-p.done:
		return Stats{Closed: true}
	}
	return <-reply
}

// claimReply carries the (epoch, seq) a fenced batch should retry under.
type claimReply struct {
	epoch int64
	seq   int64
}

// claimEpoch serializes a 403 stale-epoch response into a single epoch
// bump even when multiple batches are fenced concurrently (maxInFlight >
// 1): only the first caller to observe a given serverEpochHint actually
// advances p.epoch; later callers racing in get a fresh seq under whatever
// epoch is current by the time their closure runs. A 403 without a
// Producer-Epoch header (serverEpochHint < 0) advances the epoch by one on
// every call.
func (p *IdempotentProducer) claimEpoch(serverEpochHint int64) claimReply {
	reply := make(chan claimReply, 1)
	cmd := func() {
		candidate := p.epoch + 1
		if serverEpochHint >= 0 {
			candidate = serverEpochHint + 1
		}
		if candidate > p.epoch {
			old := p.epoch
			p.epoch = candidate
			p.nextSeq = 0
			p.epochClaimed = false
			p.coord.DropEpoch(old)
			p.metrics.AutoClaimsTotal.Inc()
			p.logger.Warn("auto-claimed new epoch",
				zap.Int64("old_epoch", old), zap.Int64("new_epoch", p.epoch))
		}
		seq := p.nextSeq
		p.nextSeq++
		reply <- claimReply{epoch: p.epoch, seq: seq}
	}

	select {
	case p.cmds <- cmd:
	case <-p.done:
		return claimReply{epoch: p.cfg.Epoch, seq: 0}
	}
	return <-reply
}

func (p *IdempotentProducer) markClaimed(epoch int64) {
	cmd := func() {
		if p.epoch == epoch {
			p.epochClaimed = true
		}
	}
	select {
	case p.cmds <- cmd:
	case <-p.done:
	}
}

// resolveContentType lazily fetches the stream's content type once via
// HEAD, falling back to application/octet-stream on any error. A rare
// duplicate HEAD under concurrent first-sends would be acceptable per the
// single-assignment cache contract; sync.Once makes it not even rare.
func (p *IdempotentProducer) resolveContentType(ctx context.Context) string {
	p.ctOnce.Do(func() {
		ct, err := p.stream.headOnce(ctx)
		if err != nil || ct == "" {
			p.contentType = "application/octet-stream"
		} else {
			p.contentType = ct
		}
	})
	return p.contentType
}

// runBatch drives one sealed batch through the full send/retry protocol,
// then resolves every message promise and notifies the onError sink and
// owner goroutine exactly once. The in-flight slot was already acquired by
// dispatchLoop before this goroutine was spawned; runBatch owns releasing
// it.
func (p *IdempotentProducer) runBatch(batch *batchTask, handle *batchHandle) {
	handle.err = p.sendBatchWithProtocol(batch)
	p.metrics.InFlight.Dec()
	p.sem.Release(1)

	err := handle.err
	close(handle.done)

	closedObserved := errors.Is(err, ErrStreamClosed)
	select {
	case p.cmds <- func() {
		p.pruneInflightLocked(handle)
		if closedObserved {
			p.observeStreamClosedLocked()
		}
	}:
	case <-p.done:
	}

	for _, m := range batch.messages {
		m.err = err
		close(m.done)
	}

	if err != nil {
		p.metrics.BatchesTotal.WithLabelValues("failure").Inc()
		if p.onError != nil {
			p.onError(err)
		}
		p.logger.Error("batch failed terminally",
			zap.Int64("epoch", batch.epoch), zap.Int64("seq", batch.seq), zap.Error(err))
	} else {
		p.metrics.BatchesTotal.WithLabelValues("success").Inc()
	}
}

// sendBatchWithProtocol implements the per-batch protocol: content-type
// discovery, encoding, header construction, and the full response
// classification table, looping internally on gap-wait and auto-claim
// retries until the batch resolves terminally (success or terminal error).
func (p *IdempotentProducer) sendBatchWithProtocol(batch *batchTask) error {
	for {
		if p.closedObserved.Load() {
			return ErrStreamClosed
		}

		ct := p.resolveContentType(context.Background())
		body := batchenc.Encode(ct, batch.payloads())

		makeRequest := func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, p.stream.url, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set(headerContentType, ct)
			req.Header.Set(headerProducerID, p.cfg.ProducerID)
			req.Header.Set(headerProducerEpoch, strconv.FormatInt(batch.epoch, 10))
			req.Header.Set(headerProducerSeq, strconv.FormatInt(batch.seq, 10))
			for k, v := range p.cfg.Headers {
				req.Header.Set(k, v)
			}
			return req, nil
		}

		resp, err := p.stream.doWithRetry(context.Background(), makeRequest)
		if err != nil {
			p.coord.Signal(batch.epoch, batch.seq, err)
			return &NetworkError{Err: err}
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			p.coord.Signal(batch.epoch, batch.seq, nil)
			if batch.seq == 0 {
				p.markClaimed(batch.epoch)
			}
			return nil

		case resp.StatusCode == http.StatusForbidden:
			hint := int64(-1)
			if h := resp.Header.Get(headerProducerEpoch); h != "" {
				if v, perr := strconv.ParseInt(h, 10, 64); perr == nil {
					hint = v
				}
			}
			if !p.cfg.AutoClaim {
				currentEpoch := hint
				if currentEpoch < 0 {
					currentEpoch = batch.epoch
				}
				staleErr := &StaleEpochError{CurrentEpoch: currentEpoch}
				p.coord.Signal(batch.epoch, batch.seq, staleErr)
				return staleErr
			}
			claim := p.claimEpoch(hint)
			batch.epoch = claim.epoch
			batch.seq = claim.seq
			continue

		case resp.StatusCode == http.StatusConflict:
			if resp.Header.Get(headerStreamClosed) == "true" {
				p.coord.Signal(batch.epoch, batch.seq, ErrStreamClosed)
				return ErrStreamClosed
			}
			if expStr := resp.Header.Get(headerProducerExpectedSeq); expStr != "" {
				expected, perr := strconv.ParseInt(expStr, 10, 64)
				if perr != nil {
					expected = 0
				}
				p.metrics.GapWaitsTotal.Inc()
				p.logger.Debug("gap wait", zap.Int64("epoch", batch.epoch),
					zap.Int64("expected", expected), zap.Int64("received", batch.seq))
				if err := p.awaitPriorSequences(batch.epoch, expected, batch.seq); err != nil {
					p.coord.Signal(batch.epoch, batch.seq, err)
					return err
				}
				continue
			}
			p.coord.Signal(batch.epoch, batch.seq, ErrContentTypeMismatch)
			return ErrContentTypeMismatch

		case resp.StatusCode == http.StatusBadRequest:
			invErr := &InvalidRequestError{Body: string(bodyBytes)}
			p.coord.Signal(batch.epoch, batch.seq, invErr)
			return invErr

		case resp.StatusCode == http.StatusNotFound:
			p.coord.Signal(batch.epoch, batch.seq, ErrStreamNotFound)
			return ErrStreamNotFound

		default:
			httpErr := &HTTPError{Status: resp.StatusCode, Body: string(bodyBytes)}
			p.coord.Signal(batch.epoch, batch.seq, httpErr)
			return httpErr
		}
	}
}

// awaitPriorSequences waits for every sequence in [expected, upTo) of
// epoch to complete successfully before a gap-fenced batch retries.
func (p *IdempotentProducer) awaitPriorSequences(epoch, expected, upTo int64) error {
	for s := expected; s < upTo; s++ {
		done, errFn := p.coord.Wait(epoch, s)
		<-done
		if err := errFn(); err != nil {
			return fmt.Errorf("waiting on prior sequence %d: %w", s, err)
		}
	}
	return nil
}
