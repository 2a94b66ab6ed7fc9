package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
)

const (
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "proofing-api"
)

// RealtimeMessage is one selection change fanned out to a gallery's viewers.
type RealtimeMessage struct {
	GalleryID string    `json:"gallery_id"`
	EventType string    `json:"type"`
	PhotoID   string    `json:"photo_id,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// RealtimeDispatcher fans selection events out to subscribers of each gallery.
// Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for galleryID until ctx ends or cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, galleryID string) (<-chan RealtimeMessage, func()) {
	if galleryID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(galleryID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(galleryID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to every subscriber of its gallery.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.GalleryID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.GalleryID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// PublishSelectionEvent lets the favorites service notify gallery viewers.
func (d *RealtimeDispatcher) PublishSelectionEvent(event favorites.SelectionEvent) {
	timestamp := event.At
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	d.Publish(RealtimeMessage{
		GalleryID: event.GalleryID,
		EventType: event.Type,
		PhotoID:   event.PhotoID,
		CommentID: event.CommentID,
		Source:    realtimeSourceBackend,
		Timestamp: timestamp.UTC(),
	})
}

// SubscriberCount reports the live subscribers of galleryID.
func (d *RealtimeDispatcher) SubscriberCount(galleryID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[galleryID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(galleryID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[galleryID]; !ok {
		d.subscribers[galleryID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[galleryID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(galleryID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[galleryID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, galleryID)
		}
	}
	d.mu.Unlock()
}
