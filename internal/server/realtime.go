package server

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
	"github.com/MarcoPoloResearchLab/crmcore/internal/replica"
)

const (
	RealtimeEventDocumentChanged = "document-change"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceReplica        = "crmcore-replica"
)

// RealtimeMessage announces that records of the listed families changed.
type RealtimeMessage struct {
	Families  []events.Family
	EventType string
	EventIDs  []string
	Timestamp time.Time
}

// RealtimeDispatcher fans document changes out to stream subscribers.
// Each family is a topic; one subscriber may watch several topics and
// receives a single message per change naming the watched families it touched.
type RealtimeDispatcher struct {
	mu         sync.RWMutex
	topics     map[events.Family]map[int64]*realtimeSubscriber
	nextID     int64
	bufferSize int
	clock      func() time.Time
}

type realtimeSubscriber struct {
	id       int64
	families []events.Family
	stream   chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		topics:     make(map[events.Family]map[int64]*realtimeSubscriber),
		bufferSize: 16,
		clock:      time.Now,
	}
}

// Subscribe registers one subscriber for every listed family until ctx ends or cleanup is called.
// Repeated families count once. An empty list or an unknown family yields a closed stream.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, families ...events.Family) (<-chan RealtimeMessage, func()) {
	watched, ok := distinctFamilies(families)
	if !ok {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		families: watched,
		stream:   make(chan RealtimeMessage, d.bufferSize),
	}
	d.register(subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(subscriber) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to every subscriber of at least one of its families,
// narrowing Families to the ones that subscriber watches. Full subscriber
// buffers drop the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if len(message.Families) == 0 || message.EventType == "" {
		return
	}
	type delivery struct {
		subscriber *realtimeSubscriber
		families   []events.Family
	}
	var deliveries []delivery
	positions := make(map[int64]int)

	d.mu.RLock()
	for _, family := range message.Families {
		for id, subscriber := range d.topics[family] {
			position, seen := positions[id]
			if !seen {
				position = len(deliveries)
				positions[id] = position
				deliveries = append(deliveries, delivery{subscriber: subscriber})
			}
			if !slices.Contains(deliveries[position].families, family) {
				deliveries[position].families = append(deliveries[position].families, family)
			}
		}
	}
	d.mu.RUnlock()

	for _, target := range deliveries {
		narrowed := message
		narrowed.Families = target.families
		select {
		case target.subscriber.stream <- narrowed:
		default:
		}
	}
}

// PublishChange is a replica change listener.
func (d *RealtimeDispatcher) PublishChange(change replica.Change) {
	d.Publish(RealtimeMessage{
		Families:  change.Families,
		EventType: RealtimeEventDocumentChanged,
		EventIDs:  change.EventIDs,
		Timestamp: d.clock().UTC(),
	})
}

func (d *RealtimeDispatcher) subscriberCount(family events.Family) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.topics[family])
}

func (d *RealtimeDispatcher) register(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	for _, family := range subscriber.families {
		if _, ok := d.topics[family]; !ok {
			d.topics[family] = make(map[int64]*realtimeSubscriber)
		}
		d.topics[family][subscriber.id] = subscriber
	}
}

func (d *RealtimeDispatcher) unregister(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, family := range subscriber.families {
		subscribers := d.topics[family]
		if subscribers == nil {
			continue
		}
		delete(subscribers, subscriber.id)
		if len(subscribers) == 0 {
			delete(d.topics, family)
		}
	}
}

// distinctFamilies keeps the first occurrence of each family in order.
func distinctFamilies(families []events.Family) ([]events.Family, bool) {
	if len(families) == 0 {
		return nil, false
	}
	distinct := make([]events.Family, 0, len(families))
	for _, family := range families {
		if !family.Valid() {
			return nil, false
		}
		if !slices.Contains(distinct, family) {
			distinct = append(distinct, family)
		}
	}
	return distinct, true
}
