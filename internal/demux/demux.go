// Package demux runs the single RX task that reads inbound DHCPv6
// frames off the wire endpoint and fans them out to per-transaction
// waiters, keyed by (message type, transaction id).
package demux

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/insomniacslk/dhcp/dhcpv6"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/agentlog"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/codec"
)

// Frame is one inbound datagram paired with its sender.
type Frame struct {
	Bytes  []byte
	Sender string
}

type waiterKey struct {
	msgType dhcpv6.MessageType
	trid    codec.TRID
}

// waiter accumulates matching frames until its window elapses, then
// delivers a single batch (possibly empty) to done.
type waiter struct {
	key    waiterKey
	frames []Frame
	done   chan []Frame
}

// Demux owns the waiter registry and the single RX goroutine.
type Demux struct {
	mu      sync.Mutex
	waiters []*waiter

	readFrame func() (Frame, error)
	logger    logr.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs a Demux. readFrame is called in a loop by Run; it
// should block until the next inbound datagram or ctx cancellation.
func New(readFrame func() (Frame, error)) *Demux {
	return &Demux{
		readFrame: readFrame,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run executes the RX loop until ctx is cancelled or Stop is called.
// Exactly one goroutine should call Run (spec §4.3: "exactly one RX
// task").
func (d *Demux) Run(ctx context.Context) {
	defer close(d.done)
	log := agentlog.FromContext(ctx).WithName("demux")
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		default:
		}
		frame, err := d.readFrame()
		if err != nil {
			log.V(1).Info("read failed, continuing", "error", err)
			time.Sleep(time.Millisecond)
			continue
		}
		if len(frame.Bytes) < 4 {
			continue
		}
		msgType := dhcpv6.MessageType(frame.Bytes[0])
		trid := codec.TRID{frame.Bytes[1], frame.Bytes[2], frame.Bytes[3]}
		d.dispatch(waiterKey{msgType: msgType, trid: trid}, frame)
	}
}

// Stop halts the RX loop; safe to call once.
func (d *Demux) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Demux) dispatch(key waiterKey, frame Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.waiters {
		if w.key == key {
			w.frames = append(w.frames, frame)
		}
	}
}

// Register opens a waiter for (msgType, trid) with the given gather
// window. The returned channel receives exactly one batch (possibly
// empty) after the window elapses.
func (d *Demux) Register(msgType dhcpv6.MessageType, trid codec.TRID, window time.Duration) <-chan []Frame {
	w := &waiter{key: waiterKey{msgType: msgType, trid: trid}, done: make(chan []Frame, 1)}
	d.mu.Lock()
	d.waiters = append(d.waiters, w)
	d.mu.Unlock()

	go func() {
		timer := time.NewTimer(window)
		defer timer.Stop()
		<-timer.C
		d.mu.Lock()
		batch := w.frames
		for i, cand := range d.waiters {
			if cand == w {
				d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
				break
			}
		}
		d.mu.Unlock()
		w.done <- batch
	}()

	return w.done
}
