// Package store connects watchers to the Firestore collections holding SOS
// alerts, incidents and risk zones.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/mirror"
)

// Logger is the subset of pluginapi.LogService used by the store.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
	Warn(message string, keyValuePairs ...any)
}

// Store wraps a Firestore client.
type Store struct {
	client *firestore.Client
	log    Logger
}

// DecodeCredentials accepts a service account key either as raw JSON or
// base64 encoded JSON.
func DecodeCredentials(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("firebase credentials are empty")
	}
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}

	creds, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode firebase credentials: %w", err)
	}
	return creds, nil
}

// Open initializes a Firebase app and its Firestore client. projectID may be
// empty when the credentials carry it.
func Open(ctx context.Context, credentials, projectID string, log Logger) (*Store, error) {
	creds, err := DecodeCredentials(credentials)
	if err != nil {
		return nil, err
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}

	return New(client, log), nil
}

// New wraps an existing client.
func New(client *firestore.Client, log Logger) *Store {
	return &Store{client: client, log: log}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Subscribe starts a snapshot listener on the collection.
func (s *Store) Subscribe(ctx context.Context, q mirror.Query) (mirror.Stream, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	query := s.client.Collection(q.Collection).Query
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	return &snapshotStream{
		iter:       query.Snapshots(ctx),
		collection: q.Collection,
		log:        s.log,
	}, nil
}

// Alerts returns a writer bound to one alert collection.
func (s *Store) Alerts(collection string) *AlertCollection {
	return &AlertCollection{store: s, collection: collection}
}

// snapshotStream adapts a Firestore snapshot iterator to mirror.Stream.
type snapshotStream struct {
	iter       *firestore.QuerySnapshotIterator
	collection string
	log        Logger
}

func (st *snapshotStream) Next() (*mirror.Delivery, error) {
	snap, err := st.iter.Next()
	if err != nil {
		return nil, err
	}

	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot documents: %w", err)
	}

	d := &mirror.Delivery{
		Documents: make([]mirror.Document, 0, len(docs)),
		Changes:   make([]mirror.Change, 0, len(snap.Changes)),
		ReadTime:  snap.ReadTime,
	}
	for _, doc := range docs {
		d.Documents = append(d.Documents, toDocument(doc))
	}
	for _, change := range snap.Changes {
		kind, ok := changeKind(change.Kind)
		if !ok {
			st.log.Warn("Skipping unknown document change kind", "collection", st.collection, "kind", int(change.Kind))
			continue
		}
		d.Changes = append(d.Changes, mirror.Change{Kind: kind, Doc: toDocument(change.Doc)})
	}

	return d, nil
}

func (st *snapshotStream) Stop() {
	st.iter.Stop()
}

func toDocument(doc *firestore.DocumentSnapshot) mirror.Document {
	if doc == nil || doc.Ref == nil {
		return mirror.Document{}
	}
	return mirror.Document{ID: doc.Ref.ID, Data: plainValues(doc.Data())}
}

func changeKind(k firestore.DocumentChangeKind) (mirror.ChangeKind, bool) {
	switch k {
	case firestore.DocumentAdded:
		return mirror.ChangeAdded, true
	case firestore.DocumentModified:
		return mirror.ChangeModified, true
	case firestore.DocumentRemoved:
		return mirror.ChangeRemoved, true
	default:
		return "", false
	}
}

// plainValues rewrites Firestore-specific values into plain maps the
// normalizer understands. Geo points become {"lat", "lng"} maps.
func plainValues(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch val := v.(type) {
	case *latlng.LatLng:
		if val == nil {
			return nil
		}
		return map[string]any{"lat": val.GetLatitude(), "lng": val.GetLongitude()}
	case map[string]any:
		return plainValues(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}

// mutationError classifies a Firestore error for the coordinator.
func mutationError(op, alertID string, err error) *coordinator.MutationError {
	if errors.Is(err, coordinator.ErrAlreadyResolved) {
		return coordinator.NewMutationError(op, alertID, coordinator.KindRejected, coordinator.ErrAlreadyResolved.Error(), err)
	}

	switch status.Code(err) {
	case codes.NotFound:
		return coordinator.NewMutationError(op, alertID, coordinator.KindNotFound, "alert not found", err)
	case codes.DeadlineExceeded:
		return coordinator.NewMutationError(op, alertID, coordinator.KindTimeout, "request timed out", err)
	case codes.PermissionDenied, codes.FailedPrecondition, codes.InvalidArgument:
		return coordinator.NewMutationError(op, alertID, coordinator.KindRejected, status.Convert(err).Message(), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return coordinator.NewMutationError(op, alertID, coordinator.KindTimeout, "request timed out", err)
	}
	return coordinator.NewMutationError(op, alertID, coordinator.KindTransport, "store unavailable", err)
}

// AlertCollection writes to one alert collection.
type AlertCollection struct {
	store      *Store
	collection string
}

// Acknowledge marks the alert dispatched by identity. The read and the write
// share a transaction so a concurrent resolve cannot be overwritten.
func (c *AlertCollection) Acknowledge(ctx context.Context, alertID, identity string, at time.Time) error {
	ref := c.store.client.Collection(c.collection).Doc(alertID)

	err := c.store.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if alert.ParseStatus(snap.Data()["status"]) == alert.StatusResolved {
			return coordinator.ErrAlreadyResolved
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: "dispatched"},
			{Path: "acknowledgedBy", Value: identity},
			{Path: "acknowledgedAt", Value: at},
		})
	})
	if err != nil {
		return mutationError(coordinator.OpAcknowledge, alertID, err)
	}

	c.store.log.Debug("Acknowledged alert", "collection", c.collection, "alertId", alertID, "by", identity)
	return nil
}

// InsertTestAlert adds a synthetic alert and returns its id.
func (c *AlertCollection) InsertTestAlert(ctx context.Context, sim SimulatedAlert) (string, error) {
	ref, _, err := c.store.client.Collection(c.collection).Add(ctx, sim.Fields())
	if err != nil {
		return "", fmt.Errorf("failed to insert test alert: %w", err)
	}

	c.store.log.Debug("Inserted test alert", "collection", c.collection, "alertId", ref.ID, "testRun", sim.TestRun)
	return ref.ID, nil
}
