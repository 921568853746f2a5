// Command idemproducer-bench drives an IdempotentProducer against a live
// Durable Streams server and reports throughput, for manual load testing
// outside the unit test suite.
//
//	go run ./cmd/idemproducer-bench -url http://localhost:8080/streams/bench -count 10000 -concurrency 50
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamkeep/producer"
)

func main() {
	var (
		url           = flag.String("url", "", "full stream URL (required)")
		count         = flag.Int("count", 10000, "number of messages to append")
		size          = flag.Int("size", 128, "size in bytes of each message")
		concurrency   = flag.Int("concurrency", 50, "number of concurrent appenders")
		maxInFlight   = flag.Int("max-inflight", 16, "producer MaxInFlight")
		maxBatchBytes = flag.Int("max-batch-bytes", 1<<20, "producer MaxBatchBytes")
		lingerMs      = flag.Int("linger-ms", 5, "producer LingerMs")
		autoClaim     = flag.Bool("auto-claim", false, "enable auto-claim on fencing")
		producerID    = flag.String("producer-id", "", "producer id (defaults to a fresh uuid)")
		verbose       = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "error: -url is required")
		flag.Usage()
		os.Exit(2)
	}

	id := *producerID
	if id == "" {
		id = uuid.NewString()
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("building logger: %v", err)
		}
		logger = l
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := producer.NewClient()
	stream := client.Stream(*url)

	if err := stream.Create(ctx, producer.WithContentType("application/octet-stream")); err != nil {
		log.Fatalf("create stream: %v", err)
	}

	cfg := producer.DefaultIdempotentProducerConfig(id)
	cfg.MaxInFlight = *maxInFlight
	cfg.MaxBatchBytes = *maxBatchBytes
	cfg.LingerMs = *lingerMs
	cfg.AutoClaim = *autoClaim

	var failures int64
	p, err := client.IdempotentProducer(stream, cfg,
		producer.WithLogger(logger),
		producer.WithOnError(func(err error) {
			atomic.AddInt64(&failures, 1)
			logger.Warn("batch failed", zap.Error(err))
		}),
	)
	if err != nil {
		log.Fatalf("new producer: %v", err)
	}
	defer p.Close(context.Background())

	payloads := make([][]byte, *concurrency)
	for i := range payloads {
		payloads[i] = make([]byte, *size)
		rand.Read(payloads[i])
	}

	var wg sync.WaitGroup
	work := make(chan int, *count)
	for i := 0; i < *count; i++ {
		work <- i
	}
	close(work)

	start := time.Now()
	var sent int64
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			data := payloads[worker]
			for range work {
				if err := p.Append(ctx, data); err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				atomic.AddInt64(&sent, 1)
			}
		}(w)
	}
	wg.Wait()

	if err := p.Flush(ctx); err != nil {
		logger.Warn("final flush observed an error", zap.Error(err))
	}
	elapsed := time.Since(start)

	stats := p.Stats()
	fmt.Printf("producer-id:    %s\n", id)
	fmt.Printf("sent:           %d\n", sent)
	fmt.Printf("failed:         %d\n", atomic.LoadInt64(&failures))
	fmt.Printf("elapsed:        %s\n", elapsed)
	fmt.Printf("throughput:     %.1f msg/s\n", float64(sent)/elapsed.Seconds())
	fmt.Printf("final epoch:    %d\n", stats.Epoch)
	fmt.Printf("final next seq: %d\n", stats.NextSeq)
}
