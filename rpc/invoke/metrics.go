package invoke

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// Call paths used as metric labels
const (
	PathLocal  = "local"  // executed by Dispatcher.Invoke
	PathRemote = "remote" // sent to a peer by Invoker.Call
	PathServed = "served" // executed for a peer by Dispatcher.Handle
)

// MethodUnknown is the method label of calls to unregistered methods
const MethodUnknown = "(unknown)"

// timers holds one latency timer per path and method, named "<path>.<method>"
var timers = gometrics.NewRegistry()

// observe records the latency and the outcome of a single call
func observe(path, method string, start time.Time, err error) {
	gometrics.GetOrRegisterTimer(path+"."+method, timers).UpdateSince(start)
	metrics.GetOrCreateCounter(fmt.Sprintf(`dsync_invoke_calls_total{method=%q,path=%q}`, method, path)).Inc()
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`dsync_invoke_errors_total{method=%q,path=%q}`, method, path)).Inc()
	}
}

// MethodStats summarizes the latency timer of one method on one path
type MethodStats struct {
	Path   string
	Method string
	Count  int64
	Mean   time.Duration
	P99    time.Duration
}

func (s MethodStats) String() string {
	return fmt.Sprintf("%-6s %-16s calls=%d mean=%s p99=%s", s.Path, s.Method, s.Count, s.Mean, s.P99)
}

// Stats returns the latency statistics of every method called so far,
// sorted by path and method.
func Stats() []MethodStats {
	var out []MethodStats
	timers.Each(func(name string, i interface{}) {
		t, ok := i.(gometrics.Timer)
		if !ok {
			return
		}
		path, method, _ := strings.Cut(name, ".")
		snap := t.Snapshot()
		out = append(out, MethodStats{
			Path:   path,
			Method: method,
			Count:  snap.Count(),
			Mean:   time.Duration(snap.Mean()),
			P99:    time.Duration(snap.Percentile(0.99)),
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}
