// Command event-seeder runs a synthetic upstream feed for local development:
// it serves the bulk threats endpoint and an SSE stream of generated
// detections, matching the wire contract the ingestor consumes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	addr       = flag.String("addr", ":5000", "listen address")
	count      = flag.Int("count", 500, "number of historical events to generate")
	interval   = flag.Duration("interval", 2*time.Second, "interval between streamed events")
	timeSpread = flag.Duration("time-spread", 24*time.Hour, "spread historical events over this period")
)

var threatTypes = []string{
	"DDoS Attack",
	"Port Scanning",
	"Malicious IP Detected",
	"SQL Injection Attempt",
	"XSS Attempt",
}

type threatEvent struct {
	Timestamp     string `json:"timestamp"`
	ThreatType    string `json:"threatType"`
	SourceIP      string `json:"sourceIP"`
	DestinationIP string `json:"destinationIP"`
	Ports         string `json:"ports"`
}

func main() {
	flag.Parse()
	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting event seeder:")
	log.Printf("  Listen address: %s", *addr)
	log.Printf("  Historical events: %d", *count)
	log.Printf("  Stream interval: %v", *interval)
	log.Printf("  Time spread: %v", *timeSpread)

	// A small pool of repeat offenders makes the per-IP analytics
	// interesting.
	sources := make([]string, 12)
	for i := range sources {
		sources[i] = gofakeit.IPv4Address()
	}

	history := generateHistory(sources, *count, *timeSpread)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/threats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(history); err != nil {
			log.Printf("encode threats: %v", err)
		}
	})
	mux.HandleFunc("GET /api/threats/stream", func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, sources, *interval)
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","events":%d}`+"\n", len(history))
	})

	log.Fatal(http.ListenAndServe(*addr, mux))
}

func generateHistory(sources []string, n int, spread time.Duration) []threatEvent {
	events := make([]threatEvent, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		offset := time.Duration(rand.Int63n(int64(spread)))
		events = append(events, randomEvent(sources, now.Add(-offset)))
	}
	// The real feed appends in chronological order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events
}

func randomEvent(sources []string, at time.Time) threatEvent {
	ports := fmt.Sprintf("%d", gofakeit.Number(1, 65535))
	if gofakeit.Bool() {
		ports = fmt.Sprintf("[%d, %d, %d]",
			gofakeit.Number(1, 1024), gofakeit.Number(1, 1024), gofakeit.Number(1, 1024))
	}
	return threatEvent{
		Timestamp:     at.Format("2006-01-02 15:04:05"),
		ThreatType:    threatTypes[rand.Intn(len(threatTypes))],
		SourceIP:      sources[rand.Intn(len(sources))],
		DestinationIP: gofakeit.IPv4Address(),
		Ports:         ports,
	}
}

func streamEvents(w http.ResponseWriter, r *http.Request, sources []string, interval time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-ticker.C:
			event := randomEvent(sources, time.Now())
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
