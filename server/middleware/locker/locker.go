// Package locker provides an HTTP middleware that can lock a device's
// routes, returning 423 (Locked) while a client holds the lock.  It gives
// HTTP clients the one-writer-at-a-time exclusion the device controllers
// themselves do not provide.
package locker

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/nasa-jpl/ddsgen/server"

	"goji.io/pat"
)

// Inject adds GET and POST /lock routes to an HTTPer, through which clients
// inspect and manipulate the lock
func Inject(h server.HTTPer, l *Locker) {
	rt := h.RT()
	rt[pat.Get("/lock")] = l.HTTPGet
	rt[pat.Post("/lock")] = l.HTTPSet
}

// Locker is a non-blocking lock over a set of HTTP routes.  Unlike a mutex,
// requests arriving while it is held are refused, not queued.
type Locker struct {
	mu     sync.Mutex
	locked bool

	// DoNotProtect is a list of path substrings exempt from the lock
	DoNotProtect []string
}

// New returns a Locker which exempts the lock routes themselves
func New() *Locker {
	return &Locker{DoNotProtect: []string{"lock"}}
}

// Lock engages the lock
func (l *Locker) Lock() {
	l.mu.Lock()
	l.locked = true
	l.mu.Unlock()
}

// Unlock releases the lock
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.locked = false
	l.mu.Unlock()
}

// Locked reports whether the lock is engaged
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Check is the middleware: protected routes are bounced with 423 while the
// lock is engaged
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() {
			protected := true
			for _, s := range l.DoNotProtect {
				if strings.Contains(r.URL.Path, s) {
					protected = false
					break
				}
			}
			if protected {
				w.WriteHeader(http.StatusLocked)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPGet reports the lock state as {"bool": locked}
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	server.EncodeJSON(w, server.BoolT{Bool: l.Locked()})
}

// HTTPSet engages or releases the lock from {"bool": wantLocked}
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}
