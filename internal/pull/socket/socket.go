// Package socket implements the pull engine's push-notification listener
// of spec.md §4.6/§6: a Unix-domain stream socket accepting
// newline-terminated repository paths, debounced and handed to a callback.
package socket

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDebounce is the window within which repeated notifications for
// the same path coalesce into one (spec.md §8 scenario 6).
const DefaultDebounce = 5 * time.Second

// Listener accepts push notifications and forwards deduplicated paths to
// Notify.
type Listener struct {
	Path     string
	Debounce time.Duration
	Notify   func(path string)
	Log      zerolog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
	ln       net.Listener
}

// Serve listens on l.Path until ctx is cancelled, then closes and removes
// the socket file. Unknown paths are still forwarded; the engine itself
// decides whether the path names a repository it manages, logging a
// warning when it does not.
func (l *Listener) Serve(ctx context.Context) error {
	if l.Debounce <= 0 {
		l.Debounce = DefaultDebounce
	}
	l.lastSeen = map[string]time.Time{}

	_ = os.Remove(l.Path)
	ln, err := net.Listen("unix", l.Path)
	if err != nil {
		return fmt.Errorf("listening on push socket %s: %w", l.Path, err)
	}
	if err := os.Chmod(l.Path, 0660); err != nil {
		ln.Close()
		return fmt.Errorf("setting push socket permissions: %w", err)
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
		_ = os.Remove(l.Path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("accepting push connection: %w", err)
		}
		go l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		path := scanner.Text()
		if path == "" {
			continue
		}
		l.deliver(path)
	}
}

func (l *Listener) deliver(path string) {
	l.mu.Lock()
	now := time.Now()
	if last, ok := l.lastSeen[path]; ok && now.Sub(last) < l.Debounce {
		l.lastSeen[path] = now
		l.mu.Unlock()
		return
	}
	l.lastSeen[path] = now
	l.mu.Unlock()

	l.Notify(path)
}
