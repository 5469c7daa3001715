// Package pipeline implements the presentation-handling state machine: a
// notice is parsed into a credential, the credential is chain-validated
// against a schema family, a signed webhook delivery is attempted until it
// succeeds or times out, and the successful delivery is reaped. Six
// sub-processors (the five pipeline stages plus the revocation cue router)
// cooperate over the six named escrow tables in
// internal/store; every processor runs once per sweep and a failure in one
// entry never aborts the sweep.
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
	"github.com/Will-Luck/sally-agent/internal/webhook"
)

// notice is the payload shape pinned into recv, revk, and ack: the
// credential plus the action the downstream webhook delivery should carry,
// and — for revocations — the TEL's revocation timestamp.
type notice struct {
	Action              string          `json:"action"`
	Credential          acdc.Credential `json:"credential"`
	RevocationTimestamp time.Time       `json:"revocation_timestamp,omitempty"`
}

// Dependencies collects everything the pipeline needs from the rest of the
// application: collaborators, persistence, and the webhook client.
type Dependencies struct {
	Escrow     *store.Store
	ACDC       collab.ACDCStore
	TEL        collab.TELEngine
	Dispatcher *schema.Dispatcher
	Webhook    *webhook.Client
	Clock      clock.Clock
	Log        *logging.Logger
	Timeout    time.Duration
}

// Pipeline wires the sub-processors and runs one full sweep over all six
// escrow tables in state-machine order: intake, presentation escrow,
// revocation cue router, revocation watcher, delivery, ack reaper.
type Pipeline struct {
	intake     *NoticeIntake
	present    *PresentationEscrowProcessor
	cueRouter  *RevocationCueRouter
	revocation *RevocationWatcher
	delivery   *DeliveryEngine
	ackReaper  *AckReaper

	escrow *store.Store
	log    *logging.Logger
}

// New builds a Pipeline. queue is the transport-specific NotificationQueue
// (direct HTTP or MQTT) selected by the caller based on AGENT_MODE.
func New(deps Dependencies, queue collab.NotificationQueue, parser collab.Parser) *Pipeline {
	return &Pipeline{
		intake: &NoticeIntake{
			Queue:  queue,
			Parser: parser,
			Escrow: deps.Escrow,
			Clock:  deps.Clock,
			Log:    deps.Log,
		},
		present: &PresentationEscrowProcessor{
			Escrow:     deps.Escrow,
			ACDC:       deps.ACDC,
			TEL:        deps.TEL,
			Dispatcher: deps.Dispatcher,
			Clock:      deps.Clock,
			Timeout:    deps.Timeout,
			Log:        deps.Log,
		},
		cueRouter: &RevocationCueRouter{
			Escrow: deps.Escrow,
			TEL:    deps.TEL,
			Clock:  deps.Clock,
			Log:    deps.Log,
		},
		revocation: &RevocationWatcher{
			Escrow:  deps.Escrow,
			ACDC:    deps.ACDC,
			TEL:     deps.TEL,
			Clock:   deps.Clock,
			Timeout: deps.Timeout,
			Log:     deps.Log,
		},
		delivery: NewDeliveryEngine(deps),
		ackReaper: &AckReaper{
			Escrow: deps.Escrow,
			Log:    deps.Log,
		},
		escrow: deps.Escrow,
		log:    deps.Log,
	}
}

// Sweep runs every sub-processor once, in state-machine order, reports
// escrow-depth gauges, and counts the cycle. A sub-processor error is
// logged and does not stop the remaining sub-processors from running.
func (p *Pipeline) Sweep(ctx context.Context) {
	defer metrics.SweepsTotal.Inc()

	p.run(ctx, "intake", p.intake.Sweep)
	p.run(ctx, "presentation_escrow", p.present.Sweep)
	p.run(ctx, "revocation_cue_router", p.cueRouter.Sweep)
	p.run(ctx, "revocation_watcher", p.revocation.Sweep)
	p.run(ctx, "delivery", p.delivery.Sweep)
	p.run(ctx, "ack_reaper", p.ackReaper.Sweep)

	p.reportDepths()
}

func (p *Pipeline) run(ctx context.Context, name string, fn func(context.Context) error) {
	timer := metrics.SweepDuration.WithLabelValues(name)
	start := time.Now()
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	if err := fn(ctx); err != nil {
		p.log.Error("sub-processor sweep failed", "processor", name, "error", err)
	}
}

func (p *Pipeline) reportDepths() {
	for _, table := range []string{store.TableSnd, store.TableIss, store.TableRev, store.TableRecv, store.TableRevk, store.TableAck} {
		n, err := p.escrow.Len(table)
		if err != nil {
			p.log.Warn("read escrow depth", "table", table, "error", err)
			continue
		}
		metrics.EscrowDepth.WithLabelValues(table).Set(float64(n))
	}
}

func marshalNotice(n notice) (json.RawMessage, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal escrow notice: %w", err)
	}
	return data, nil
}

func unmarshalNotice(raw json.RawMessage) (notice, error) {
	var n notice
	if err := json.Unmarshal(raw, &n); err != nil {
		return notice{}, fmt.Errorf("unmarshal escrow notice: %w", err)
	}
	return n, nil
}
