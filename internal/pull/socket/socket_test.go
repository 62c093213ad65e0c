package socket_test

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/pull/socket"
)

// Scenario 6 (spec.md §8): sending the same path five times within 2s
// results in exactly one delivered notification.
func TestDebounceCoalescesRepeatedNotifications(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "grokmirror.sock")

	var mu sync.Mutex
	var received []string

	l := &socket.Listener{
		Path:     sockPath,
		Debounce: 2 * time.Second,
		Notify: func(path string) {
			mu.Lock()
			received = append(received, path)
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ctx) }()

	require.Eventually(t, func() bool {
		_, err := net.Dial("unix", sockPath)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	for i := 0; i < 5; i++ {
		conn, err := net.Dial("unix", sockPath)
		require.NoError(t, err)
		_, err = conn.Write([]byte("/x.git\n"))
		require.NoError(t, err)
		conn.Close()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-errCh
}
