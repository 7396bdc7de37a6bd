package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// AuthResp is the server's response when a user is registered.
type AuthResp struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Token string `json:"token"`
}

// FollowersResp is returned by GET /users/{id}/followers.
type FollowersResp struct {
	Followers []string `json:"followers"`
}

type followRecord struct {
	FollowerID string
	FolloweeID string
	Created    time.Time
}

func main() {
	// CLI flags
	var serverAddr string
	var U, F, concurrency int
	var pollTimeout int
	var certFile, keyFile string

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&U, "users", 50, "number of users to register")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&concurrency, "c", 20, "concurrency for following")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for a follower to be indexed")
	flag.StringVar(&certFile, "cert", "", "client certificate for TLS")
	flag.StringVar(&keyFile, "key", "", "client key for TLS")
	flag.Parse()

	ctx := context.Background()

	transport := &http.Transport{}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load cert/key: %v", err))
		}
		transport.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	client := &http.Client{Transport: transport, Timeout: 10 * time.Second}

	// --- 1) Register users ---
	fmt.Printf("Registering %d users...\n", U)
	users := make([]AuthResp, 0, U)
	for i := 0; i < U; i++ {
		name := fmt.Sprintf("user-%d-%d", i, time.Now().UnixNano())
		payload := map[string]string{
			"username": name,
			"email":    name + "@e2e.test",
			"password": "e2e-test-password",
		}
		b, _ := json.Marshal(payload)

		resp, err := client.Post(serverAddr+"/users", "application/json", bytes.NewReader(b))
		if err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}

		var ur AuthResp
		if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
			resp.Body.Close()
			fmt.Printf("decode user resp error: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		users = append(users, ur)
	}
	fmt.Println("Users registered successfully.")

	// --- 2) Follow concurrently ---
	fmt.Printf("Creating follows (~%d per user) with concurrency %d...\n", F, concurrency)
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter
	followsCh := make(chan followRecord, U*F)

	for _, u := range users {
		for j := 0; j < F; j++ {
			followee := users[rand.Intn(len(users))]
			if followee.User.ID == u.User.ID {
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(u, followee AuthResp) {
				defer wg.Done()
				defer func() { <-sem }()

				b, _ := json.Marshal(map[string]string{"followee_id": followee.User.ID})
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, serverAddr+"/follow", bytes.NewReader(b))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Authorization", "Bearer "+u.Token)

				created := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					fmt.Printf("follow error: %v\n", err)
					return
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					fmt.Printf("follow status: %d\n", resp.StatusCode)
					return
				}
				followsCh <- followRecord{FollowerID: u.User.ID, FolloweeID: followee.User.ID, Created: created}
			}(u, followee)
		}
	}

	wg.Wait()
	close(followsCh)

	// --- 3) Wait for the worker to index every follower ---
	fmt.Println("Checking followers index...")
	var latencies []float64
	var latMu sync.Mutex
	var failCount int64
	var checksWg sync.WaitGroup

	for fr := range followsCh {
		checksWg.Add(1)
		go func(fr followRecord) {
			defer checksWg.Done()
			deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)

			// Poll the followers index until the follower appears or timeout
			for time.Now().Before(deadline) {
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, serverAddr+"/users/"+fr.FolloweeID+"/followers", nil)
				resp, err := client.Do(req)
				if err != nil {
					time.Sleep(200 * time.Millisecond)
					continue
				}

				var out FollowersResp
				if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
					resp.Body.Close()
					time.Sleep(200 * time.Millisecond)
					continue
				}
				resp.Body.Close()

				for _, id := range out.Followers {
					if id == fr.FollowerID {
						lat := time.Since(fr.Created).Seconds() * 1000
						latMu.Lock()
						latencies = append(latencies, lat)
						latMu.Unlock()
						return
					}
				}
				time.Sleep(200 * time.Millisecond)
			}

			latMu.Lock()
			failCount++
			latMu.Unlock()
		}(fr)
	}

	checksWg.Wait()

	// --- 4) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No indexed follows recorded.")
		return
	}

	trimPercent := 1.0
	meanVal := trimmedMean(latencies, trimPercent)
	p50 := trimmedPercentile(latencies, 50, trimPercent)
	p90 := trimmedPercentile(latencies, 90, trimPercent)
	p99 := trimmedPercentile(latencies, 99, trimPercent)
	fmt.Printf("Indexing stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d\n",
		len(latencies), meanVal, p50, p90, p99, failCount)

	f, err := os.Create("e2e_latencies.csv")
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	w := csv.NewWriter(f)
	w.Write([]string{"latency_ms"})
	for _, v := range latencies {
		w.Write([]string{fmt.Sprintf("%.3f", v)})
	}
	w.Flush()
	f.Close()
	fmt.Println("Saved e2e_latencies.csv")
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	data = trim(data, trimPercent)
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	return percentile(trim(data, trimPercent), p)
}

func trim(data []float64, trimPercent float64) []float64 {
	sort.Float64s(data)
	n := int(float64(len(data)) * trimPercent / 100.0)
	if n*2 >= len(data) {
		n = len(data) / 2
	}
	return data[n : len(data)-n]
}

// percentile calculates the requested percentile using linear interpolation.
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
