package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080/events/send", "Target URL for event submission")
	contentID := flag.String("content-id", "shop123", "Tenant content id to submit under")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 500, "Requests per second limit")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	// A rotating set of event types so the relay exercises both standard
	// and remapped paths under load.
	eventTypes := []string{"PageView", "ViewContent", "Scroll_50", "AddToCart", "Purchase"}

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			for n := 0; ; n++ {
				select {
				case <-ctx.Done():
					return
				default:
					limiter.Wait(ctx) // Wait for token from rate limiter

					eventType := eventTypes[n%len(eventTypes)]
					payload := fmt.Sprintf(
						`{"eventType": "%s", "contentId": "%s", "userId": "%s", "event_source_url": "https://shop.example/p/%d", "value": 99.99, "currency": "BRL"}`,
						eventType, *contentID, uuid.NewString(), workerID,
					)

					req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewBufferString(payload))
					if err != nil {
						continue // Should not happen
					}
					req.Header.Set("Content-Type", "application/json")

					resp, err := client.Do(req)
					if err != nil {
						errorCount.Add(1)
						continue
					}
					resp.Body.Close()

					if resp.StatusCode == http.StatusOK {
						successCount.Add(1)
					} else {
						errorCount.Add(1)
					}
				}
			}
		}(i)
	}

	wg.Wait()
	log.Printf("Load test finished. Success: %d, Errors: %d", successCount.Load(), errorCount.Load())
}
