package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Will-Luck/sally-agent/internal/acdc"
	"github.com/Will-Luck/sally-agent/internal/clock"
	"github.com/Will-Luck/sally-agent/internal/collab"
	"github.com/Will-Luck/sally-agent/internal/logging"
	"github.com/Will-Luck/sally-agent/internal/metrics"
	"github.com/Will-Luck/sally-agent/internal/schema"
	"github.com/Will-Luck/sally-agent/internal/store"
)

// PresentationEscrowProcessor walks the iss table once per sweep: each
// entry either times out, waits for its credential to become locally
// verifiable, is rejected by chain validation, is demoted to a revocation
// notice because its TEL state is anything other than issued (revoked, or
// absent from the TEL), or graduates to recv awaiting webhook delivery.
type PresentationEscrowProcessor struct {
	Escrow     *store.Store
	ACDC       collab.ACDCStore
	TEL        collab.TELEngine
	Dispatcher *schema.Dispatcher
	Clock      clock.Clock
	Timeout    time.Duration
	Log        *logging.Logger
}

func (p *PresentationEscrowProcessor) Sweep(ctx context.Context) error {
	recs, err := p.Escrow.GetItemIter(store.TableIss)
	if err != nil {
		return fmt.Errorf("list iss escrow: %w", err)
	}

	now := p.Clock.Now()
	for _, rec := range recs {
		p.processOne(ctx, rec, now)
	}
	return nil
}

func (p *PresentationEscrowProcessor) processOne(ctx context.Context, rec store.Record, now time.Time) {
	said := rec.SAID

	if now.Sub(rec.PinnedAt) > p.Timeout {
		if err := p.Escrow.Rem(store.TableIss, said); err != nil {
			p.Log.Error("remove timed-out iss entry", "said", said, "error", err)
		}
		return
	}

	cred, ok, err := p.ACDC.Get(ctx, said)
	if err != nil {
		p.Log.Error("fetch presented credential", "said", said, "error", err)
		return
	}
	if !ok {
		return // not yet locally verifiable; re-check next sweep
	}

	tel, err := p.TEL.State(ctx, cred.Regi, said)
	if err != nil {
		p.Log.Error("fetch tel state", "said", said, "error", err)
		return
	}

	if tel.Status != acdc.TELIssued {
		p.Log.Error("revoked credential presented", "said", said, "issuer", cred.Issuer)
		if err := p.pinRecv(said, rec.PinnedAt, cred, "rev", tel.RevocationTimestamp); err != nil {
			p.Log.Error("pin revoked presentation", "said", said, "error", err)
		}
		if err := p.Escrow.Rem(store.TableIss, said); err != nil {
			p.Log.Error("remove iss entry", "said", said, "error", err)
		}
		return
	}

	tag, err := p.Dispatcher.Validate(ctx, cred)
	if err != nil {
		metrics.PresentationsValidated.WithLabelValues(tag.String(), "rejected").Inc()
		p.Log.Error("presentation validation failed", "said", said, "error", err)
		if err := p.Escrow.Rem(store.TableIss, said); err != nil {
			p.Log.Error("remove iss entry", "said", said, "error", err)
		}
		return
	}
	metrics.PresentationsValidated.WithLabelValues(tag.String(), "accepted").Inc()

	if err := p.pinRecv(said, rec.PinnedAt, cred, "iss", time.Time{}); err != nil {
		p.Log.Error("pin validated presentation", "said", said, "error", err)
	}
	if err := p.Escrow.Rem(store.TableIss, said); err != nil {
		p.Log.Error("remove iss entry", "said", said, "error", err)
	}
}

func (p *PresentationEscrowProcessor) pinRecv(said string, arrivedAt time.Time, cred acdc.Credential, action string, revokedAt time.Time) error {
	raw, err := marshalNotice(notice{Action: action, Credential: cred, RevocationTimestamp: revokedAt})
	if err != nil {
		return err
	}
	return p.Escrow.Pin(store.TableRecv, said, raw, arrivedAt)
}

// RevocationCueRouter drains the TEL engine's queued revocation cues and
// pins each into the rev table. It is the core's half of the cue-listener
// split described by the TELEngine collaborator: the engine only observes
// and queues a revocation; routing it into an escrow the Revocation Watcher
// can sweep is the pipeline's job, same as every other table transition.
type RevocationCueRouter struct {
	Escrow *store.Store
	TEL    collab.TELEngine
	Clock  clock.Clock
	Log    *logging.Logger
}

func (r *RevocationCueRouter) Sweep(ctx context.Context) error {
	cues, err := r.TEL.DrainRevocationCues(ctx)
	if err != nil {
		return fmt.Errorf("drain revocation cues: %w", err)
	}

	now := r.Clock.Now()
	for _, cue := range cues {
		if err := r.Escrow.Pin(store.TableRev, cue.SAID, json.RawMessage(`{}`), now); err != nil {
			r.Log.Error("pin revocation cue", "said", cue.SAID, "regi", cue.Regi, "error", err)
		}
	}
	return nil
}

// RevocationWatcher walks the rev table once per sweep, waiting for a
// presented-and-since-revoked credential's TEL to catch up before
// promoting it to revk for webhook delivery.
type RevocationWatcher struct {
	Escrow  *store.Store
	ACDC    collab.ACDCStore
	TEL     collab.TELEngine
	Clock   clock.Clock
	Timeout time.Duration
	Log     *logging.Logger
}

func (r *RevocationWatcher) Sweep(ctx context.Context) error {
	recs, err := r.Escrow.GetItemIter(store.TableRev)
	if err != nil {
		return fmt.Errorf("list rev escrow: %w", err)
	}

	now := r.Clock.Now()
	for _, rec := range recs {
		r.processOne(ctx, rec, now)
	}
	return nil
}

func (r *RevocationWatcher) processOne(ctx context.Context, rec store.Record, now time.Time) {
	said := rec.SAID

	if now.Sub(rec.PinnedAt) > r.Timeout {
		if err := r.Escrow.Rem(store.TableRev, said); err != nil {
			r.Log.Error("remove timed-out rev entry", "said", said, "error", err)
		}
		return
	}

	cred, ok, err := r.ACDC.Get(ctx, said)
	if err != nil {
		r.Log.Error("fetch watched credential", "said", said, "error", err)
		return
	}
	if !ok {
		return // received revocation cue before the credential itself; wait
	}

	tel, err := r.TEL.State(ctx, cred.Regi, said)
	if err != nil {
		r.Log.Error("fetch tel state", "said", said, "error", err)
		return
	}

	switch tel.Status {
	case acdc.TELAbsent, acdc.TELIssued:
		return // haven't received the revocation event yet; wait
	case acdc.TELRevoked:
		metrics.RevocationsConfirmed.Inc()
		raw, err := marshalNotice(notice{Action: "rev", Credential: cred, RevocationTimestamp: tel.RevocationTimestamp})
		if err != nil {
			r.Log.Error("marshal revocation notice", "said", said, "error", err)
			return
		}
		if err := r.Escrow.Pin(store.TableRevk, said, raw, rec.PinnedAt); err != nil {
			r.Log.Error("pin revk entry", "said", said, "error", err)
			return
		}
		if err := r.Escrow.Rem(store.TableRev, said); err != nil {
			r.Log.Error("remove rev entry", "said", said, "error", err)
		}
	}
}
