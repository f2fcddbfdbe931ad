// Package main demonstrates the adaptive cache package end to end: a
// populated corridor-quote cache, a background worker driving TTL sweep
// and bus-based invalidation, and a Prometheus /metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quartune/stellar-insights/cache"
	"github.com/quartune/stellar-insights/observe"
)

// quote is the cached payload: a corridor's current exchange quote.
type quote struct {
	Corridor string
	Rate     float64
	AsOf     time.Time
}

var corridors = []string{"USD-EUR", "USD-PHP", "USD-MXN", "USD-NGN", "USD-ARS"}
var anchors = []string{"anchor-1", "anchor-2", "anchor-3"}

func main() {
	log.Println("Setting up Prometheus metrics...")
	registry := prometheus.NewRegistry()
	promMetrics := cache.NewPrometheusMetrics(registry, "cachedemo")

	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		log.Println("Metrics server listening on :9091")
		log.Println("Prometheus metrics: http://localhost:9091/metrics")
		if err := http.ListenAndServe(":9091", nil); err != nil {
			log.Printf("metrics server error: %v\n", err)
		}
	}()

	log.Println("Creating cache store and worker...")
	store, worker := cache.NewFromConfig[quote](cache.NewConfig(
		cache.WithCapacity(500),
		cache.WithDefaultTTL(30*time.Second),
		cache.WithSweepInterval(5*time.Second),
	))
	store.WithPrometheus(promMetrics)
	worker.SetEmitter(observe.NewLogEmitter(os.Stdout, false))

	for _, c := range corridors {
		store.Set("corridor:"+c+":quote", quote{Corridor: c, Rate: 1.0, AsOf: time.Now()}, 30*time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go worker.Run(ctx)

	log.Println("Driving load: payment/anchor events every 2s, admin flush every 20s")
	log.Println("Press Ctrl+C to stop")

	eventTicker := time.NewTicker(2 * time.Second)
	defer eventTicker.Stop()
	adminTicker := time.NewTicker(20 * time.Second)
	defer adminTicker.Stop()
	reportTicker := time.NewTicker(10 * time.Second)
	defer reportTicker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			log.Println("shutting down")
			return
		case <-sigChan:
			log.Println("received interrupt signal")
			cancel()
		case <-eventTicker.C:
			tick++
			corridor := corridors[rand.Intn(len(corridors))]
			store.Set("corridor:"+corridor+":quote", quote{Corridor: corridor, Rate: 1.0 + rand.Float64(), AsOf: time.Now()}, 30*time.Second)
			store.Publish(cache.PaymentDetected{CorridorID: corridor})

			if tick%3 == 0 {
				anchor := anchors[rand.Intn(len(anchors))]
				store.Publish(cache.AnchorStatusChanged{AnchorID: anchor})
			}
		case <-adminTicker.C:
			log.Println("operator: flushing all corridor quotes")
			store.Publish(cache.AdminInvalidate{Pattern: "corridor:*"})
		case <-reportTicker.C:
			m := store.Metrics()
			fmt.Printf("hits=%d misses=%d hit_rate=%.2f invalidations=%d evictions=%d size=%d\n",
				m.Hits, m.Misses, m.HitRate(), m.Invalidations, m.Evictions, m.CurrentSize)
		}
	}
}
