// Package tracking owns a driver's live-location capture: one session per
// driver, fed by a positioning source, throttling relays to the dispatch
// backend to a minimum interval while keeping the latest fix available for
// live display.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrGPSUnavailable is returned by Start when the device reports no
// positioning capability. The session stays Idle.
var ErrGPSUnavailable = errors.New("tracking: GPS is not available on this device")

// ErrPermissionDenied is fatal to a session: the source can no longer deliver
// fixes, so the session auto-stops.
var ErrPermissionDenied = errors.New("tracking: location permission denied")

// Sample is one ephemeral GPS fix. Only the most recent sample is retained.
type Sample struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	RecordedAt time.Time
}

// Subscription is a cancellable position stream. Close is the single release
// point and is safe to call more than once.
type Subscription interface {
	Updates() <-chan Sample
	Errs() <-chan error
	Close()
}

// Source abstracts the device positioning capability.
type Source interface {
	// Available reports whether positioning exists at all.
	Available() bool
	// Current requests one immediate fix (fast initial position).
	Current(ctx context.Context) (Sample, error)
	// Watch registers a continuous position subscription.
	Watch(ctx context.Context) (Subscription, error)
}

const subBuffer = 16

type channelSub struct {
	source  *ChannelSource
	updates chan Sample
	errs    chan error
	once    sync.Once
}

func (s *channelSub) Updates() <-chan Sample { return s.updates }
func (s *channelSub) Errs() <-chan error     { return s.errs }

func (s *channelSub) Close() {
	s.once.Do(func() {
		s.source.remove(s)
	})
}

// ChannelSource is a Source fed externally, e.g. by location_update frames
// arriving on a driver's websocket. Feed fans samples out to every live
// subscription without blocking; a slow consumer drops samples rather than
// stalling the stream.
type ChannelSource struct {
	mu        sync.Mutex
	available bool
	subs      map[*channelSub]struct{}
}

// NewChannelSource creates a source; available=false models a device with no
// positioning capability.
func NewChannelSource(available bool) *ChannelSource {
	return &ChannelSource{
		available: available,
		subs:      make(map[*channelSub]struct{}),
	}
}

func (c *ChannelSource) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *ChannelSource) subscribe() *channelSub {
	sub := &channelSub{
		source:  c,
		updates: make(chan Sample, subBuffer),
		errs:    make(chan error, subBuffer),
	}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	return sub
}

func (c *ChannelSource) remove(sub *channelSub) {
	c.mu.Lock()
	if _, ok := c.subs[sub]; ok {
		delete(c.subs, sub)
		close(sub.updates)
		close(sub.errs)
	}
	c.mu.Unlock()
}

// Feed delivers one fix to every subscriber.
func (c *ChannelSource) Feed(sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs {
		select {
		case sub.updates <- sample:
		default:
			// Subscriber buffer full; drop rather than block the stream.
		}
	}
}

// FeedError delivers a positioning error to every subscriber.
func (c *ChannelSource) FeedError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs {
		select {
		case sub.errs <- err:
		default:
		}
	}
}

// Current blocks until the next fix arrives or the context expires.
func (c *ChannelSource) Current(ctx context.Context) (Sample, error) {
	if !c.Available() {
		return Sample{}, ErrGPSUnavailable
	}
	sub := c.subscribe()
	defer sub.Close()

	select {
	case sample, ok := <-sub.updates:
		if !ok {
			return Sample{}, errors.New("tracking: position source closed")
		}
		return sample, nil
	case err := <-sub.errs:
		return Sample{}, err
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}
}

// Watch registers a continuous subscription that is released either by Close
// or by the context ending.
func (c *ChannelSource) Watch(ctx context.Context) (Subscription, error) {
	if !c.Available() {
		return nil, ErrGPSUnavailable
	}
	sub := c.subscribe()
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}
