package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// AuthResp is the body returned by POST /users.
type AuthResp struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Token string `json:"token"`
}

// FollowReq is the JSON payload for POST /follow
type FollowReq struct {
	FolloweeID string `json:"followee_id"`
}

// followeeIndex picks any of n users other than self. n must be at least 2.
func followeeIndex(self, n int, intn func(int) int) int {
	return (self + 1 + intn(n-1)) % n
}

func newClient(certFile, keyFile string) *http.Client {
	transport := &http.Transport{}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load cert/key: %v", err))
		}
		transport.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}
}

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var target string
	var certFile, keyFile string

	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.StringVar(&target, "target", "follow", "endpoint to load: follow or tags")
	flag.StringVar(&certFile, "cert", "", "client certificate for TLS")
	flag.StringVar(&keyFile, "key", "", "client key for TLS")
	flag.Parse()

	if target == "follow" && concurrency < 2 {
		fmt.Fprintln(os.Stderr, "-target=follow needs -c of at least 2, a user cannot follow itself")
		os.Exit(2)
	}

	client := newClient(certFile, keyFile)

	// --- Register users for each goroutine ---
	fmt.Printf("Registering %d users...\n", concurrency)
	users := make([]AuthResp, concurrency)
	for i := 0; i < concurrency; i++ {
		name := fmt.Sprintf("load-user-%d-%d", i, time.Now().UnixNano())
		payload := map[string]string{
			"username": name,
			"email":    name + "@load.test",
			"password": "load-test-password",
		}
		b, _ := json.Marshal(payload)

		resp, err := client.Post(server+"/users", "application/json", bytes.NewReader(b))
		if err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
		if resp.StatusCode != http.StatusCreated {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			panic(fmt.Sprintf("failed to create user: %d %s", resp.StatusCode, body))
		}

		if err := json.NewDecoder(resp.Body).Decode(&users[i]); err != nil {
			resp.Body.Close()
			panic(fmt.Sprintf("failed to decode user response: %v", err))
		}
		resp.Body.Close()
	}
	fmt.Println("Users registered.")

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var requests int64
	var successes int64
	var errors4xx int64
	var errors5xx int64

	latencySlices := make([][]float64, concurrency) // each goroutine records latencies

	// --- Start concurrent goroutines for load test ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := users[idx]
			var localLatencies []float64

			for time.Now().Before(stopTime) {
				var req *http.Request
				if target == "tags" {
					req, _ = http.NewRequestWithContext(context.Background(), http.MethodGet, server+"/tags", nil)
				} else {
					followee := users[followeeIndex(idx, len(users), rand.Intn)]
					b, _ := json.Marshal(FollowReq{FolloweeID: followee.User.ID})
					req, _ = http.NewRequestWithContext(context.Background(), http.MethodPost, server+"/follow", bytes.NewReader(b))
					req.Header.Set("Content-Type", "application/json")
					req.Header.Set("Authorization", "Bearer "+user.Token)
				}

				start := time.Now()
				resp, err := client.Do(req)
				lat := time.Since(start).Seconds() * 1000 // latency in ms
				localLatencies = append(localLatencies, lat)
				atomic.AddInt64(&requests, 1)

				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}

				// Count success/failure by status code
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					atomic.AddInt64(&successes, 1)
				} else if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					atomic.AddInt64(&errors4xx, 1)
				} else if resp.StatusCode >= 500 {
					atomic.AddInt64(&errors5xx, 1)
				}

				bodyBytes, _ := io.ReadAll(resp.Body)
				if resp.StatusCode >= 400 && len(bodyBytes) > 0 {
					fmt.Printf("Status %d: %s\n", resp.StatusCode, string(bodyBytes))
				}
				resp.Body.Close()
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	// --- Merge all latencies ---
	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}
	sort.Float64s(allLatencies)

	// --- Compute statistics ---
	trimmedMeanVal := trimmedMean(allLatencies, trimPercent)
	p50 := percentile(allLatencies, 50)
	p90 := percentile(allLatencies, 90)
	p99 := percentile(allLatencies, 99)

	fmt.Printf("Target: %s\n", target)
	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n", trimmedMeanVal, p50, p90, p99)

	// --- Save latencies to CSV ---
	f, err := os.Create(csvFile)
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms"})
	for _, d := range allLatencies {
		w.Write([]string{fmt.Sprintf("%.3f", d)})
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// trimmedMean calculates mean latency after trimming top/bottom trimPercent values
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	trimmed := data[trim : len(data)-trim]
	if len(trimmed) == 0 {
		return 0
	}
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile calculates the p-th percentile from sorted data
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
