// Package coordinator applies operator actions on alerts: a direct
// acknowledge write and an optimistic resolve confirmed by an external
// authority.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/metrics"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/session"
)

// DefaultTimeout bounds acknowledge and resolve requests.
const DefaultTimeout = 10 * time.Second

// ResolvedMessage is shown to operators when the authority confirms a resolve.
const ResolvedMessage = "Alert Resolved by Command Center"

// InconsistentNote is attached to failed resolves.
const InconsistentNote = "The alert was removed from the active list but the remote state may not reflect it."

// Logger is the subset of pluginapi.LogService used by the coordinator.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
	Info(message string, keyValuePairs ...any)
	Warn(message string, keyValuePairs ...any)
	Error(message string, keyValuePairs ...any)
}

// AlertWriter updates alert documents in the remote store.
type AlertWriter interface {
	Acknowledge(ctx context.Context, alertID, identity string, at time.Time) error
}

// Resolver asks the external authority to resolve an alert.
type Resolver interface {
	Resolve(ctx context.Context, alertID string) error
}

// Outcome is the final result of an asynchronous resolve.
type Outcome struct {
	AlertID string               `json:"alertId"`
	State   session.ResolveState `json:"state"`
	Message string               `json:"message"`
	Kind    Kind                 `json:"kind,omitempty"`
	Status  int                  `json:"status,omitempty"`
	Note    string               `json:"note,omitempty"`
}

// ResultFunc receives resolve outcomes. It is not called for sessions that
// ended before the outcome arrived.
type ResultFunc func(Outcome)

// Options configure a Coordinator.
type Options struct {
	Timeout  time.Duration
	OnResult ResultFunc
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Coordinator runs mutations for one session.
type Coordinator struct {
	session  *session.Session
	writer   AlertWriter
	resolver Resolver
	log      Logger
	opts     Options

	wg sync.WaitGroup
}

// New creates a coordinator for sess.
func New(sess *session.Session, writer AlertWriter, resolver Resolver, log Logger, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Coordinator{
		session:  sess,
		writer:   writer,
		resolver: resolver,
		log:      log,
		opts:     opts,
	}
}

// Acknowledge marks alertID dispatched by identity. Status only moves forward,
// so alerts that are resolved, or being resolved from this session, are
// refused without a write. Ids missing from the replica go to the store,
// which reports them as not found.
func (c *Coordinator) Acknowledge(ctx context.Context, alertID, identity string) error {
	if c.session.Closed() {
		return session.ErrClosed
	}

	if err := c.checkAcknowledge(alertID); err != nil {
		c.opts.Metrics.RecordMutation(OpAcknowledge, err)
		c.log.Debug("Acknowledge refused", "alertId", alertID, "error", err.Error())
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	err := c.writer.Acknowledge(ctx, alertID, identity, c.opts.Now())
	c.opts.Metrics.RecordMutation(OpAcknowledge, err)
	if err != nil {
		mErr := asMutationError(OpAcknowledge, alertID, err)
		c.log.Warn("Acknowledge failed", "alertId", alertID, "kind", string(mErr.Kind), "error", err.Error())
		return mErr
	}

	c.log.Info("Alert acknowledged", "alertId", alertID, "by", identity)
	return nil
}

func (c *Coordinator) checkAcknowledge(alertID string) error {
	if a, ok := c.session.Get(alertID); ok && a.Status == alert.StatusResolved {
		return NewMutationError(OpAcknowledge, alertID, KindRejected, ErrAlreadyResolved.Error(), ErrAlreadyResolved)
	}
	if r, ok := c.session.Resolution(alertID); ok {
		detail := fmt.Sprintf("alert resolve is %s", r.State)
		return NewMutationError(OpAcknowledge, alertID, KindRejected, detail, ErrAlreadyResolved)
	}
	return nil
}

// Resolve removes alertID from the active list and sends the request to the
// authority in the background. The returned resolution is the local state
// right after the call; a second call while pending sends nothing.
func (c *Coordinator) Resolve(alertID string) (session.Resolution, error) {
	r, started, err := c.session.BeginResolve(alertID)
	if err != nil || !started {
		return r, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.confirm(alertID)
	}()

	return r, nil
}

// confirm outlives the session: the request always reaches the authority and
// only its result is dropped once the session has ended.
func (c *Coordinator) confirm(alertID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	err := c.resolver.Resolve(ctx, alertID)
	c.opts.Metrics.RecordMutation(OpResolve, err)

	if err == nil {
		if !c.session.ConfirmResolve(alertID) {
			c.log.Debug("Discarding resolve result for ended session", "alertId", alertID)
			return
		}
		c.log.Info("Alert resolved", "alertId", alertID)
		c.report(Outcome{AlertID: alertID, State: session.ResolveConfirmed, Message: ResolvedMessage})
		return
	}

	mErr := asMutationError(OpResolve, alertID, err)
	if !c.session.FailResolve(alertID, mErr.Detail) {
		c.log.Debug("Discarding resolve failure", "alertId", alertID, "error", err.Error())
		return
	}

	c.log.Warn("Resolve failed", "alertId", alertID, "kind", string(mErr.Kind), "error", err.Error())
	c.report(Outcome{
		AlertID: alertID,
		State:   session.ResolveInconsistent,
		Message: mErr.Summary(),
		Kind:    mErr.Kind,
		Status:  mErr.Status,
		Note:    InconsistentNote,
	})
}

func (c *Coordinator) report(o Outcome) {
	if c.opts.OnResult != nil {
		c.opts.OnResult(o)
	}
}

// Wait blocks until every in-flight resolve finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close waits for in-flight requests, each bounded by the request timeout.
// Call after the session is closed so their results are discarded.
func (c *Coordinator) Close() {
	c.wg.Wait()
}
