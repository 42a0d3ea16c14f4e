package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"sync"
	"time"
)

// Question answering is the only public endpoint, so it carries the
// abuse budget: 10 requests per 60-second window per client identity.
const (
	rateWindow   = time.Minute
	rateRequests = 10
)

// clientLimiter keeps a windowed request counter per client identity.
// Each allowed request pushes the window's expiry a full rateWindow
// out, so the counter clears only after 60 seconds of inactivity;
// rejected requests do not extend it. Idle entries are swept so the
// map does not grow with one-off visitors.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	done    chan struct{}
}

type clientEntry struct {
	count   int
	expires time.Time
}

func newClientLimiter() *clientLimiter {
	l := &clientLimiter{
		clients: make(map[string]*clientEntry),
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow reports whether the identity may make another request now. A
// request over budget is rejected without touching the counter, so a
// client hammering the endpoint does not push its own window forward.
func (l *clientLimiter) Allow(identity string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[identity]
	if !ok || now.After(entry.expires) {
		entry = &clientEntry{}
		l.clients[identity] = entry
	}

	if entry.count >= rateRequests {
		return false
	}
	entry.count++
	entry.expires = now.Add(rateWindow)
	return true
}

// stop ends the sweep goroutine.
func (l *clientLimiter) stop() {
	close(l.done)
}

// sweep drops identities whose window has expired; a surviving entry
// would be reset on its next request anyway.
func (l *clientLimiter) sweep() {
	ticker := time.NewTicker(rateWindow)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			for id, entry := range l.clients {
				if time.Now().After(entry.expires) {
					delete(l.clients, id)
				}
			}
			l.mu.Unlock()
		}
	}
}

// clientIdentity identifies the caller: the authenticated user id when
// the host platform forwards one, otherwise a hash of the network
// address so raw IPs are not used as map keys.
func clientIdentity(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return "user:" + userID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	sum := sha256.Sum256([]byte(host))
	return "ip:" + hex.EncodeToString(sum[:])
}
