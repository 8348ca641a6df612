package outbound

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"
)

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// recorder collects handler observations safely; handlers run on server goroutines.
type recorder struct {
	mu     sync.Mutex
	msgs   []string
	stamps []time.Time
}

func (rec *recorder) add(msg string) {
	rec.mu.Lock()
	rec.msgs = append(rec.msgs, msg)
	rec.stamps = append(rec.stamps, time.Now())
	rec.mu.Unlock()
}

func (rec *recorder) count() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.msgs)
}

func (rec *recorder) messages() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.msgs...)
}

func (rec *recorder) times() []time.Time {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]time.Time(nil), rec.stamps...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
