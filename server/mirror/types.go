package mirror

import (
	"context"
	"fmt"
	"time"
)

// ChangeKind classifies a per-document change within a delivery.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Document is one raw document of a mirrored collection.
type Document struct {
	ID   string
	Data map[string]any
}

// Change is a single document change since the previous delivery.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// Delivery is one push of a collection: its full current contents plus the
// changes since the previous push. Seq starts at 1 for the first delivery of a
// subscription, which always carries the full pre-existing state.
type Delivery struct {
	Seq       uint64
	Documents []Document
	Changes   []Change
	ReadTime  time.Time
}

// First reports whether this is the baseline delivery of a subscription.
func (d *Delivery) First() bool {
	return d.Seq == 1
}

// Query selects the collection to subscribe to.
type Query struct {
	Collection string
	// Limit caps the number of documents, 0 means unlimited.
	Limit int
}

// Stream yields deliveries for one subscription in order.
type Stream interface {
	// Next blocks until the next delivery is available. It returns an error
	// when the subscription fails or is stopped; a failed stream is terminal.
	Next() (*Delivery, error)

	// Stop releases the subscription. It is safe to call more than once.
	Stop()
}

// Source establishes collection subscriptions.
type Source interface {
	Subscribe(ctx context.Context, q Query) (Stream, error)
}

// Connectivity is the health of a mirror's subscription.
type Connectivity string

const (
	Connecting Connectivity = "connecting"
	Online     Connectivity = "online"
	Offline    Connectivity = "offline"
	Stopped    Connectivity = "stopped"
)

// ConnectivityError reports a terminal subscription failure. The mirror does
// not reconnect after it.
type ConnectivityError struct {
	Collection string
	Err        error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("subscription to %s failed: %v", e.Collection, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}
