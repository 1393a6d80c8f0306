// ABOUTME: Load generator for fastagi-server — dials the listener and plays the role of Asterisk.
// ABOUTME: Usage: fastagi-bench [-addr host:4573] [-runs 1000] [-concurrency 50]

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	addr := flag.String("addr", "localhost:4573", "fastagi-server address")
	runs := flag.Int("runs", 1000, "number of simulated calls")
	concurrency := flag.Int("concurrency", 50, "max calls in flight at once")
	thinkTime := flag.Duration("think", 50*time.Millisecond, "simulated delay before each fake response")
	flag.Parse()

	if err := run(*addr, *runs, *concurrency, *thinkTime); err != nil {
		log.Fatal(err)
	}
}

type result struct {
	err      error
	duration time.Duration
}

func run(addr string, runs, concurrency int, thinkTime time.Duration) error {
	var okCount, failCount int64
	results := make(chan result, runs)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	wg.Add(runs)

	start := time.Now()
	for i := 0; i < runs; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			callStart := time.Now()
			err := simulateCall(addr, thinkTime)
			results <- result{err: err, duration: time.Since(callStart)}

			if err != nil {
				atomic.AddInt64(&failCount, 1)
			} else {
				atomic.AddInt64(&okCount, 1)
			}
		}(i)
	}

	wg.Wait()
	close(results)
	total := time.Since(start)

	var sumLatency time.Duration
	var maxLatency time.Duration
	for r := range results {
		sumLatency += r.duration
		if r.duration > maxLatency {
			maxLatency = r.duration
		}
	}

	fmt.Printf("runs: %d  ok: %d  failed: %d\n", runs, okCount, failCount)
	fmt.Printf("wall clock: %s  throughput: %.1f calls/s\n", total, float64(runs)/total.Seconds())
	if runs > 0 {
		fmt.Printf("avg latency: %s  max latency: %s\n", sumLatency/time.Duration(runs), maxLatency)
	}

	if failCount > 0 {
		return fmt.Errorf("%d calls failed", failCount)
	}
	return nil
}

// simulateCall dials the server, plays Asterisk's half of a FastAGI
// session: send headers, then reply to whatever commands the server's
// dialplan handler issues with a synthetic success until it either sends
// HANGUP itself or closes the connection. It does not assume a fixed
// command count, since that's a property of the dialplan handler running
// server-side, not of the wire protocol.
func simulateCall(addr string, thinkTime time.Duration) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for key, value := range fakeHeaders(addr) {
		if _, err := fmt.Fprintf(conn, "%s: %s\n", key, value); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if _, err := fmt.Fprint(conn, "\n"); err != nil {
		return fmt.Errorf("writing header terminator: %w", err)
	}

	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading command: %w", err)
		}

		time.Sleep(thinkTime)
		// A generic result=1 satisfies both success conventions: 0 for
		// most verbs, and the positive result SET VARIABLE/HANGUP expect.
		if _, err := fmt.Fprint(conn, "200 result=1\n"); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}

		if strings.HasPrefix(line, "HANGUP") {
			return nil
		}
	}
}

func fakeHeaders(addr string) map[string]string {
	return map[string]string{
		"agi_network":        "yes",
		"agi_network_script": "bench",
		"agi_request":        "agi://" + addr,
		"agi_channel":        "ALSA/default",
		"agi_language":       "en",
		"agi_type":           "Console",
		"agi_uniqueid":       randUniqueID(),
		"agi_version":        "1.0",
		"agi_callerid":       "unknown",
		"agi_calleridname":   "unknown",
		"agi_callingpres":    "67",
		"agi_callingani2":    "0",
		"agi_callington":     "0",
		"agi_callingtns":     "0",
		"agi_dnid":           "unknown",
		"agi_rdnis":          "unknown",
		"agi_context":        "default",
		"agi_extension":      "100",
		"agi_priority":       "1",
		"agi_enhanced":       "0.0",
		"agi_accountcode":    "",
		"agi_threadid":       randUniqueID(),
	}
}

func randUniqueID() string {
	return strconv.Itoa(100000000 + rand.Intn(899999999))
}
