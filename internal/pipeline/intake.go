package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Will-Luck/sally-agent/internal/clock"
	"github.com/Will-Luck/sally-agent/internal/collab"
	"github.com/Will-Luck/sally-agent/internal/logging"
	"github.com/Will-Luck/sally-agent/internal/metrics"
	"github.com/Will-Luck/sally-agent/internal/store"
)

// RouteGrant is the only notice route Notice Intake acts on; every other
// route is discarded once the notice is drained from the queue.
const RouteGrant = "/exn/ipex/grant"

// NoticeIntake drains the NotificationQueue, parses grant notices into
// credentials, and pins the first two escrow stages: snd (sender AID) and
// iss (arrival time, awaiting a verifiable chain).
type NoticeIntake struct {
	Queue  collab.NotificationQueue
	Parser collab.Parser
	Escrow *store.Store
	Clock  clock.Clock
	Log    *logging.Logger
}

// Sweep drains every notice currently buffered in the queue. Parsing
// failures for malformed sub-messages are logged; the notice is removed
// either way so a poison message never blocks later notices.
func (n *NoticeIntake) Sweep(ctx context.Context) error {
	for {
		notc, ok, err := n.Queue.Next(ctx)
		if err != nil {
			return fmt.Errorf("read notice: %w", err)
		}
		if !ok {
			return nil
		}

		n.handle(ctx, notc)
		metrics.NoticesProcessed.Inc()

		if err := n.Queue.Ack(ctx, notc.ID); err != nil {
			n.Log.Warn("ack processed notice", "id", notc.ID, "error", err)
		}
	}
}

func (n *NoticeIntake) handle(ctx context.Context, notc collab.Notice) {
	if notc.Route != RouteGrant {
		return
	}

	creds, err := n.Parser.ParseOne(ctx, notc.Body)
	if err != nil {
		n.Log.Error("malformed presentation notice", "route", notc.Route, "error", err)
		return
	}

	now := n.Clock.Now()
	for _, cred := range creds {
		sender, merr := json.Marshal(cred.Issuee)
		if merr != nil {
			n.Log.Error("marshal sender aid", "said", cred.SAID, "error", merr)
			continue
		}
		if err := n.Escrow.Pin(store.TableSnd, cred.SAID, sender, now); err != nil {
			n.Log.Error("pin snd escrow", "said", cred.SAID, "error", err)
			continue
		}
		if err := n.Escrow.Pin(store.TableIss, cred.SAID, json.RawMessage(`{}`), now); err != nil {
			n.Log.Error("pin iss escrow", "said", cred.SAID, "error", err)
		}
	}
}
