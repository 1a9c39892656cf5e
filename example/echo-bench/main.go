package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type messageList []string

func (m *messageList) String() string {
	return strings.Join(*m, ",")
}

func (m *messageList) Set(s string) error {
	*m = append(*m, s)
	return nil
}

var defaultMessages = []string{
	"Hello, World!",
	"This is a test message.",
	"Benchmarking echo server.",
	"Goroutines are cheap.",
	"Edge-triggered epoll.",
}

var (
	host        = flag.String("host", "localhost", "server host")
	port        = flag.Int("port", 0, "server port (required)")
	connections = flag.Int("connections", 100, "number of concurrent connections")
	duration    = flag.Duration("duration", 10*time.Second, "duration of the benchmark")
	messages    messageList
)

func init() {
	flag.Var(&messages, "message", "message to send, may be repeated")
}

func main() {
	flag.Parse()
	if *port <= 0 {
		fmt.Fprintln(os.Stderr, "--port is required")
		flag.Usage()
		os.Exit(1)
	}
	if len(messages) == 0 {
		messages = defaultMessages
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	results := runBenchmark(addr, *connections, messages, *duration)
	if len(results) == 0 {
		log.Fatal("no successful requests")
	}

	fmt.Println("\nBenchmark Results:")
	for _, line := range report(results, *duration) {
		fmt.Println(line)
	}
}

//runBenchmark keeps workers busy for d, each request on a fresh connection, and returns request latencies.
func runBenchmark(addr string, workers int, msgs []string, d time.Duration) []time.Duration {
	var (
		mu      sync.Mutex
		results []time.Duration
		wg      sync.WaitGroup
	)

	deadline := time.Now().Add(d)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()

			for i := w; time.Now().Before(deadline); i++ {
				elapsed, err := request(addr, msgs[i%len(msgs)])
				if err != nil {
					log.Printf("connection error: %v", err)
					continue
				}

				mu.Lock()
				results = append(results, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	return results
}

func request(addr, msg string) (time.Duration, error) {
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err = conn.SetDeadline(start.Add(5 * time.Second)); err != nil {
		return 0, err
	}
	if _, err = conn.Write([]byte(msg + "\r\n")); err != nil {
		return 0, err
	}
	if _, err = bufio.NewReader(conn).ReadString('\n'); err != nil {
		return 0, err
	}

	return time.Since(start), nil
}

func report(results []time.Duration, d time.Duration) []string {
	sorted := make([]time.Duration, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, r := range sorted {
		total += r
	}

	return []string{
		fmt.Sprintf("total_requests: %d", len(sorted)),
		fmt.Sprintf("mean_time: %s", total/time.Duration(len(sorted))),
		fmt.Sprintf("median_time: %s", median(sorted)),
		fmt.Sprintf("p95_time: %s", percentile(sorted, 95)),
		fmt.Sprintf("p99_time: %s", percentile(sorted, 99)),
		fmt.Sprintf("min_time: %s", sorted[0]),
		fmt.Sprintf("max_time: %s", sorted[len(sorted)-1]),
		fmt.Sprintf("requests_per_second: %.2f", float64(len(sorted))/d.Seconds()),
	}
}

func median(sorted []time.Duration) time.Duration {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

//percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
