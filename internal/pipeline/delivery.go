package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Will-Luck/sally-agent/internal/clock"
	"github.com/Will-Luck/sally-agent/internal/collab"
	"github.com/Will-Luck/sally-agent/internal/logging"
	"github.com/Will-Luck/sally-agent/internal/metrics"
	"github.com/Will-Luck/sally-agent/internal/schema"
	"github.com/Will-Luck/sally-agent/internal/store"
	"github.com/Will-Luck/sally-agent/internal/webhook"
)

// DeliveryEngine drives recv (action "iss") and revk (action "rev") once
// per sweep; an entry whose pinned notice names its own action (a revoked
// presentation pinned into recv as "rev") is delivered with that action
// instead. It owns the single in-flight HTTP client table shared by both
// tables, keyed by credential SAID — at most one outstanding delivery
// attempt per SAID at any time.
type DeliveryEngine struct {
	Escrow     *store.Store
	Webhook    *webhook.Client
	Dispatcher *schema.Dispatcher
	ACDC       collab.ACDCStore
	Clock      clock.Clock
	Timeout    time.Duration
	Log        *logging.Logger

	mu       sync.Mutex
	inflight map[string]*webhook.InFlight
}

// NewDeliveryEngine builds a DeliveryEngine from shared pipeline dependencies.
func NewDeliveryEngine(deps Dependencies) *DeliveryEngine {
	return &DeliveryEngine{
		Escrow:     deps.Escrow,
		Webhook:    deps.Webhook,
		Dispatcher: deps.Dispatcher,
		ACDC:       deps.ACDC,
		Clock:      deps.Clock,
		Timeout:    deps.Timeout,
		Log:        deps.Log,
		inflight:   make(map[string]*webhook.InFlight),
	}
}

func (d *DeliveryEngine) Sweep(ctx context.Context) error {
	if err := d.sweepTable(ctx, store.TableRecv, "iss"); err != nil {
		return err
	}
	return d.sweepTable(ctx, store.TableRevk, "rev")
}

func (d *DeliveryEngine) sweepTable(ctx context.Context, table, action string) error {
	recs, err := d.Escrow.GetItemIter(table)
	if err != nil {
		return fmt.Errorf("list %s escrow: %w", table, err)
	}

	now := d.Clock.Now()
	for _, rec := range recs {
		d.processOne(ctx, table, action, rec, now)
	}
	return nil
}

func (d *DeliveryEngine) processOne(ctx context.Context, table, action string, rec store.Record, now time.Time) {
	said := rec.SAID

	n, err := unmarshalNotice(rec.Payload)
	if err != nil {
		d.Log.Error("decode escrow notice", "said", said, "table", table, "error", err)
		if rmErr := d.Escrow.Rem(table, said); rmErr != nil {
			d.Log.Error("remove undecodable entry", "said", said, "error", rmErr)
		}
		return
	}
	if n.Action != "" {
		action = n.Action
	}

	f, inFlight := d.getInFlight(said)

	if !inFlight {
		d.launch(ctx, table, action, said, rec.PinnedAt, n)
		return
	}

	resp, done := f.Poll()
	if !done {
		return // still in flight; re-check next sweep
	}
	d.clearInFlight(said)

	success := resp.Err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300
	if success {
		metrics.DeliveriesTotal.WithLabelValues(action, "success").Inc()
		metrics.DeliveryDuration.Observe(now.Sub(rec.PinnedAt).Seconds())
		if err := d.Escrow.Rem(table, said); err != nil {
			d.Log.Error("remove delivered entry", "said", said, "error", err)
		}
		ackRaw, err := marshalNotice(n)
		if err != nil {
			d.Log.Error("marshal ack notice", "said", said, "error", err)
			return
		}
		if err := d.Escrow.Pin(store.TableAck, said, ackRaw, rec.PinnedAt); err != nil {
			d.Log.Error("pin ack entry", "said", said, "error", err)
		}
		return
	}

	metrics.DeliveriesTotal.WithLabelValues(action, "failure").Inc()
	if resp.Err != nil {
		d.Log.Warn("webhook delivery errored", "said", said, "error", resp.Err)
	} else {
		d.Log.Warn("webhook delivery non-success status", "said", said, "status", resp.StatusCode)
	}

	if now.Sub(rec.PinnedAt) > d.Timeout {
		if err := d.Escrow.Rem(table, said); err != nil {
			d.Log.Error("remove timed-out delivery entry", "said", said, "error", err)
		}
	}
	// otherwise retain; the next sweep launches a fresh attempt since the
	// in-flight entry has already been cleared
}

func (d *DeliveryEngine) launch(ctx context.Context, table, action, said string, arrivedAt time.Time, n notice) {
	payload, err := d.buildPayload(ctx, action, n)
	if err != nil {
		d.Log.Error("build webhook payload", "said", said, "table", table, "error", err)
		return
	}

	f, err := d.Webhook.Launch(ctx, said, n.Credential.SchemaSAID, action, n.Credential.Issuer, payload)
	if err != nil {
		d.Log.Error("launch webhook delivery", "said", said, "error", err)
		return
	}
	d.setInFlight(said, f)
}

func (d *DeliveryEngine) buildPayload(ctx context.Context, action string, n notice) (map[string]any, error) {
	if action == "rev" {
		return map[string]any{
			"schema":              n.Credential.SchemaSAID,
			"credential":          n.Credential.SAID,
			"revocationTimestamp": n.RevocationTimestamp,
		}, nil
	}

	tag, err := d.Dispatcher.Registry.Resolve(n.Credential.SchemaSAID)
	if err != nil {
		return nil, err
	}
	return d.Dispatcher.BuildPayload(ctx, tag, n.Credential, d.ACDC)
}

func (d *DeliveryEngine) getInFlight(said string) (*webhook.InFlight, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.inflight[said]
	return f, ok
}

func (d *DeliveryEngine) setInFlight(said string, f *webhook.InFlight) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight[said] = f
}

func (d *DeliveryEngine) clearInFlight(said string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, said)
}
