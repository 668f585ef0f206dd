// http-loadgen is a tiny, dependency-free HTTP load generator for exercising
// an audit-ingest control service's PublishEvent endpoint. It reuses HTTP
// connections (keep-alive) and supports concurrency so load scripts run fast
// without relying on external tools.
//
// Modes:
//   - single: publish N events for a single tenant
//   - skew:   approximate 80/20 skew (hot/cold tenants) without a PRNG: send
//     the hot tenant 4/5 of the time
//
// Usage examples:
//
//	http-loadgen -base=http://127.0.0.1:8080 -mode=single -tenant=acme -n=5000 -c=16
//	http-loadgen -base=http://127.0.0.1:8080 -mode=skew -hot_tenant=acme -cold_tenants=50 -n=8000 -c=16
//
// Notes:
//   - POSTs a minimal JSON event body to /v1/tenants/{tenant}/events/.
//   - Prints a one-line summary with duration and approximate throughput.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeSingle modeType = "single"
	modeSkew   modeType = "skew"
)

func main() {
	var (
		base       = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host, e.g. http://127.0.0.1:8080")
		eventName  = flag.String("event_name", "loadgen.probe", "Event name field sent in each published event")
		modeS      = flag.String("mode", string(modeSingle), "Mode: single|skew")
		tenant     = flag.String("tenant", "loadgen-tenant", "Tenant for single mode")
		hotTenant  = flag.String("hot_tenant", "loadgen-hot", "Hot tenant for skew mode")
		coldN      = flag.Int("cold_tenants", 50, "Number of cold tenants to round-robin in skew mode")
		N          = flag.Int("n", 5000, "Total events to publish")
		conc       = flag.Int("c", 8, "Number of concurrent workers")
		hotEvery   = flag.Int("hot_every", 5, "Skew period: all but 1 of every this-many requests go to the hot tenant; minimum 2")
		timeout    = flag.Duration("timeout", 20*time.Second, "Overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeSingle && m != modeSkew {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want single|skew)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if m == modeSkew {
		if *coldN <= 0 {
			fmt.Fprintln(os.Stderr, "-cold_tenants must be > 0 in skew mode")
			os.Exit(2)
		}
		if *hotEvery < 2 {
			*hotEvery = 2
		}
	}

	baseURL := strings.TrimRight(*base, "/")

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var done, failed int64

	worker := func(id, count int) {
		defer atomic.AddInt64(&done, int64(count))
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var t string
			if m == modeSingle {
				t = *tenant
			} else if ((i + id) % *hotEvery) != 0 {
				t = *hotTenant
			} else {
				idx := ((i + id) % *coldN) + 1
				t = fmt.Sprintf("cold-tenant-%d", idx)
			}

			body := fmt.Sprintf(
				`{"event":{"id":"loadgen-%d-%d","name":%q,"tenant_id":%q,"event_time":%q}}`,
				id, i, *eventName, t, time.Now().UTC().Format(time.RFC3339Nano),
			)
			u := baseURL + "/v1/tenants/" + t + "/events/"
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader([]byte(body)))
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				if resp.StatusCode >= 300 {
					atomic.AddInt64(&failed, 1)
				}
			} else {
				atomic.AddInt64(&failed, 1)
				time.Sleep(200 * time.Microsecond)
			}
		}
	}

	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("LoadGen: mode=%s N=%d c=%d go=%d Duration=%s Throughput=%.0f req/s failed=%d\n",
		m, *N, *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), ops, failed)
}
