package wsbridge

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultIdleTimeout is the bridge-idle default spec §9 leaves as an
// open question ("e.g. 5 minutes idle each direction").
const DefaultIdleTimeout = 5 * time.Minute

// chunkSize bounds how much of one direction can be in flight before
// the other side's Write is awaited — "a single in-flight chunk per
// direction is sufficient" per §4.2's backpressure requirement.
const chunkSize = 32 * 1024

type bridgeOptions struct {
	idleTimeout time.Duration
}

// Option configures Bridge, in the functional-options idiom the
// teacher uses for component/dialer.
type Option func(*bridgeOptions)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *bridgeOptions) { o.idleTimeout = d }
}

// Bridge runs the two concurrent pumps (client→target, target→client)
// described in spec §5 until both settle — EOF, remote close, or
// error on either side — then closes both endpoints exactly once.
// Cancelling ctx also tears the bridge down immediately.
func Bridge(ctx context.Context, client io.ReadWriteCloser, target net.Conn, opts ...Option) error {
	o := bridgeOptions{idleTimeout: DefaultIdleTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var activity atomic.Int64
	activity.Store(time.Now().UnixNano())

	var closeOnce sync.Once
	closeBoth := func() {
		_ = client.Close()
		_ = target.Close()
	}

	watchdogDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.idleTimeout / 4)
		defer ticker.Stop()
		for {
			select {
			case <-watchdogDone:
				return
			case <-ctx.Done():
				closeOnce.Do(closeBoth)
				return
			case <-ticker.C:
				last := time.Unix(0, activity.Load())
				if time.Since(last) > o.idleTimeout {
					closeOnce.Do(closeBoth)
					return
				}
			}
		}
	}()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- pump(target, client, &activity)
	}()
	go func() {
		defer wg.Done()
		errs <- pump(client, target, &activity)
	}()

	wg.Wait()
	close(watchdogDone)
	closeOnce.Do(closeBoth)
	close(errs)

	var first error
	for e := range errs {
		if e != nil && first == nil {
			first = e
		}
	}
	return first
}

// pump copies src into dst in bounded chunks, recording each
// successful transfer as activity for the idle watchdog.
func pump(dst io.Writer, src io.Reader, activity *atomic.Int64) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			activity.Store(time.Now().UnixNano())
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}
