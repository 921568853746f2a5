package producer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkeep/producer/producertest"
)

func newTestProducer(t *testing.T, ms *producertest.MockServer, path string, mutate func(*IdempotentProducerConfig)) (*Client, *Stream, *IdempotentProducer) {
	t.Helper()
	ms.CreateStream(path, "application/json")

	client := NewClient(WithHTTPClient(ms.HTTPClient()))
	stream := client.Stream(ms.URL() + path)

	cfg := DefaultIdempotentProducerConfig("producer-1")
	cfg.MaxBatchBytes = 1 // seal every append immediately; tests control batching explicitly
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := client.IdempotentProducer(stream, cfg)
	require.NoError(t, err)
	return client, stream, p
}

func TestIdempotentProducerHappyPath(t *testing.T) {
	ms := producertest.NewMockServer()
	defer ms.Close()

	_, _, p := newTestProducer(t, ms, "/streams/orders", func(cfg *IdempotentProducerConfig) {
		cfg.MaxBatchBytes = 1 << 20 // combine both appends into one batch
		cfg.LingerMs = 0            // sealed explicitly by Flush below, not a timer
	})
	defer p.Close(context.Background())

	ctx := context.Background()
	require.NoError(t, p.AppendAsync(ctx, []byte(`"a"`)))
	require.NoError(t, p.AppendAsync(ctx, []byte(`"b"`)))
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, 1, ms.AppendCount("/streams/orders"))
	committed := ms.Committed("/streams/orders")
	require.Len(t, committed, 1)

	var got []string
	require.NoError(t, json.Unmarshal(committed[0], &got))
	assert.ElementsMatch(t, []string{"a", "b"}, got)
}

func TestIdempotentProducerPreservesEnqueueOrderAcrossBatches(t *testing.T) {
	ms := producertest.NewMockServer()
	defer ms.Close()

	_, _, p := newTestProducer(t, ms, "/streams/events", func(cfg *IdempotentProducerConfig) {
		cfg.MaxBatchBytes = 1 // every append seals its own batch
		cfg.MaxInFlight = 1   // force strictly sequential submission
	})
	defer p.Close(context.Background())

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, _ := json.Marshal(i)
			require.NoError(t, p.Append(ctx, data))
		}(i)
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	committed := ms.Committed("/streams/events")
	require.Len(t, committed, 5)
	for i, body := range committed {
		var arr []int
		require.NoError(t, json.Unmarshal(body, &arr))
		require.Len(t, arr, 1)
		assert.Equal(t, i, arr[0])
	}
}

// TestIdempotentProducerGapRecoveryUnderConcurrentDispatch forces a real
// sequence gap by parking the first batch's HTTP request at the server
// before the second batch's request is even sent, proving that a
// concurrently in-flight later-seq batch (a) actually gets rejected with a
// 409 gap rather than being serialized away by the test, and (b) converges
// once the earlier seq completes, via awaitPriorSequences/seqcoord.
func TestIdempotentProducerGapRecoveryUnderConcurrentDispatch(t *testing.T) {
	ms := producertest.NewMockServer()
	defer ms.Close()

	_, _, p := newTestProducer(t, ms, "/streams/gap", func(cfg *IdempotentProducerConfig) {
		cfg.MaxBatchBytes = 1 // every append seals its own batch
		cfg.MaxInFlight = 2   // both batches may be in flight at once
	})
	defer p.Close(context.Background())

	hit, release := ms.BlockNextAppend("/streams/gap")

	ctx := context.Background()
	errCh0 := make(chan error, 1)
	go func() { errCh0 <- p.Append(ctx, []byte(`"first"`)) }()
	<-hit // the first batch's request is now parked at the server, unanswered

	notify := ms.NotifyNextAppend("/streams/gap")
	errCh1 := make(chan error, 1)
	go func() { errCh1 <- p.Append(ctx, []byte(`"second"`)) }()
	<-notify // the second batch's request has been rejected with a 409 gap

	release() // let the first batch's request complete, unblocking the gap wait

	require.NoError(t, <-errCh0)
	require.NoError(t, <-errCh1)

	committed := ms.Committed("/streams/gap")
	require.Len(t, committed, 2)
	var first, second []string
	require.NoError(t, json.Unmarshal(committed[0], &first))
	require.NoError(t, json.Unmarshal(committed[1], &second))
	assert.Equal(t, []string{"first"}, first)
	assert.Equal(t, []string{"second"}, second)
}

func TestIdempotentProducerStaleEpochWithoutAutoClaim(t *testing.T) {
	ms := producertest.NewMockServer()
	defer ms.Close()

	ms.CreateStream("/streams/fenced", "application/json")
	ms.ForceEpoch("/streams/fenced", "producer-1", 7)

	client := NewClient(WithHTTPClient(ms.HTTPClient()))
	stream := client.Stream(ms.URL() + "/streams/fenced")
	cfg := DefaultIdempotentProducerConfig("producer-1")
	cfg.MaxBatchBytes = 1
	p, err := client.IdempotentProducer(stream, cfg)
	require.NoError(t, err)
	defer p.Close(context.Background())

	err = p.Append(context.Background(), []byte(`"x"`))
	require.Error(t, err)

	var staleErr *StaleEpochError
	require.True(t, errors.As(err, &staleErr))
	assert.Equal(t, int64(7), staleErr.CurrentEpoch)
	assert.True(t, errors.Is(err, ErrStaleEpoch))
}

func TestIdempotentProducerAutoClaimRecoversFromFencing(t *testing.T) {
	ms := producertest.NewMockServer()
	defer ms.Close()

	ms.CreateStream("/streams/reclaimed", "application/json")
	ms.ForceEpoch("/streams/reclaimed", "producer-1", 3)

	client := NewClient(WithHTTPClient(ms.HTTPClient()))
	stream := client.Stream(ms.URL() + "/streams/reclaimed")
	cfg := DefaultIdempotentProducerConfig("producer-1")
	cfg.MaxBatchBytes = 1
	cfg.AutoClaim = true
	p, err := client.IdempotentProducer(stream, cfg)
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.NoError(t, p.Append(context.Background(), []byte(`"reclaimed"`)))

	stats := p.Stats()
	assert.Equal(t, int64(4), stats.Epoch)
	assert.Equal(t, 1, ms.AppendCount("/streams/reclaimed"))
}

func TestIdempotentProducerObservesStreamClosed(t *testing.T) {
	ms := producertest.NewMockServer()
	defer ms.Close()

	_, _, p := newTestProducer(t, ms, "/streams/closing", nil)
	defer p.Close(context.Background())

	ms.ForceClose("/streams/closing")

	err := p.Append(context.Background(), []byte(`"x"`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStreamClosed))

	// A closed stream observation is terminal: the producer rejects any
	// further append without attempting to send it.
	err = p.Append(context.Background(), []byte(`"y"`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProducerClosed) || errors.Is(err, ErrStreamClosed))
}

func TestIdempotentProducerRejectsAppendAfterClose(t *testing.T) {
	ms := producertest.NewMockServer()
	defer ms.Close()

	_, _, p := newTestProducer(t, ms, "/streams/closeme", nil)

	require.NoError(t, p.Close(context.Background()))
	err := p.Append(context.Background(), []byte(`"late"`))
	assert.ErrorIs(t, err, ErrProducerClosed)

	// Close is idempotent.
	require.NoError(t, p.Close(context.Background()))
}

func TestIdempotentProducerConfigValidation(t *testing.T) {
	client := NewClient()
	stream := client.Stream("https://example.invalid/streams/x")

	_, err := client.IdempotentProducer(stream, IdempotentProducerConfig{})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
