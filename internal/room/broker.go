package room

import "sync"

// subscriptionBuffer is how many snapshots a subscriber may lag behind
// before the oldest queued one is discarded.
const subscriptionBuffer = 16

// Subscription receives full room snapshots. Every snapshot is a private
// copy owned by the receiver.
type Subscription struct {
	C    <-chan Room
	ch   chan Room
	code string
}

// Broker is an in-process pub/sub for committed room snapshots, keyed by
// room code.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber for the given room.
func (b *Broker) Subscribe(code string) *Subscription {
	ch := make(chan Room, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, code: code}

	b.mu.Lock()
	if b.subs[code] == nil {
		b.subs[code] = make(map[*Subscription]struct{})
	}
	b.subs[code][sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. No snapshot is sent to it afterwards.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs[sub.code], sub)
	if len(b.subs[sub.code]) == 0 {
		delete(b.subs, sub.code)
	}
	b.mu.Unlock()
}

// Publish sends a copy of r to every subscriber of r.Code. A slow
// subscriber loses its oldest queued snapshot, never the newest.
func (b *Broker) Publish(r Room) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[r.Code] {
		snap := r.Clone()
		for {
			select {
			case sub.ch <- snap:
			default:
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribers reports how many subscribers a room has.
func (b *Broker) Subscribers(code string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[code])
}

// Close ends every subscription to code by closing its channel. Used when
// a room is deleted.
func (b *Broker) Close(code string) {
	b.mu.Lock()
	for sub := range b.subs[code] {
		close(sub.ch)
	}
	delete(b.subs, code)
	b.mu.Unlock()
}
