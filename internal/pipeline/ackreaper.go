package pipeline

import (
	"context"
	"fmt"

	"github.com/Will-Luck/sally-agent/internal/logging"
	"github.com/Will-Luck/sally-agent/internal/store"
)

// AckReaper drains the ack table once per sweep: every entry is a
// successfully delivered webhook, logged and removed. Emitting an ACK-EXN
// back to the original presenter is reserved for a future protocol
// revision; until then this is log-only.
type AckReaper struct {
	Escrow *store.Store
	Log    *logging.Logger
}

func (a *AckReaper) Sweep(ctx context.Context) error {
	recs, err := a.Escrow.GetItemIter(store.TableAck)
	if err != nil {
		return fmt.Errorf("list ack escrow: %w", err)
	}

	for _, rec := range recs {
		n, err := unmarshalNotice(rec.Payload)
		if err != nil {
			a.Log.Warn("ack entry undecodable", "said", rec.SAID, "error", err)
		} else {
			a.Log.Info("credential acknowledged", "said", rec.SAID, "action", n.Action, "issuer", n.Credential.Issuer)
		}

		if err := a.Escrow.Rem(store.TableAck, rec.SAID); err != nil {
			a.Log.Error("remove ack entry", "said", rec.SAID, "error", err)
		}
	}
	return nil
}
