package main

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentileAndMedian(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}

	assert.Equal(t, 95*time.Millisecond, percentile(sorted, 95))
	assert.Equal(t, 99*time.Millisecond, percentile(sorted, 99))
	assert.Equal(t, time.Millisecond, percentile(sorted, 0))
	assert.Equal(t, 50*time.Millisecond+500*time.Microsecond, median(sorted))
	assert.Equal(t, 2*time.Millisecond, median(sorted[:3]))
}

func TestReport(t *testing.T) {
	lines := report([]time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}, time.Second)

	require.Len(t, lines, 8)
	assert.Equal(t, "total_requests: 3", lines[0])
	assert.Equal(t, "mean_time: 2ms", lines[1])
	assert.Equal(t, "min_time: 1ms", lines[5])
	assert.Equal(t, "max_time: 3ms", lines[6])
	assert.Equal(t, "requests_per_second: 3.00", lines[7])
}

func TestRunBenchmarkAgainstLineEcho(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, err := bufio.NewReader(c).ReadString('\n')
				if err == nil {
					_, _ = c.Write([]byte(line))
				}
			}(c)
		}
	}()

	results := runBenchmark(l.Addr().String(), 4, []string{"ping"}, 100*time.Millisecond)
	assert.NotEmpty(t, results)
}
