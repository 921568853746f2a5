// Package producer implements the client-side idempotent producer for the
// Durable Streams protocol: an HTTP protocol for append-only, replayable
// byte streams with offset-based resumption, live tailing, and explicit
// end-of-stream.
//
// The centerpiece is IdempotentProducer, which turns a stream of caller
// Append calls into pipelined, batched, exactly-once HTTP writes using
// Kafka-style producer fencing (producerId, epoch, sequence) and
// server-coordinated deduplication. Stream itself is a thin handle
// covering only the operations the producer depends on: Create, Append,
// Head, Delete.
//
// # Basic usage
//
//	client := producer.NewClient()
//	stream := client.Stream("https://example.com/streams/orders")
//
//	cfg := producer.DefaultIdempotentProducerConfig("order-service-1")
//	cfg.AutoClaim = true
//
//	p, err := client.IdempotentProducer(stream, cfg)
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//
//	if err := p.Append(ctx, []byte(`{"order":1}`)); err != nil {
//		return err
//	}
//
// # Fire-and-forget
//
// AppendAsync returns as soon as the message is queued; failures surface
// through the onError sink passed to WithOnError at construction, never
// silently:
//
//	p, _ := client.IdempotentProducer(stream, cfg,
//		producer.WithOnError(func(err error) { log.Printf("batch failed: %v", err) }),
//	)
//	p.AppendAsync(ctx, []byte("event"))
//
// # Error handling
//
//	var se *producer.StaleEpochError
//	if errors.As(err, &se) {
//		// a newer producer instance has fenced this one
//	}
package producer
