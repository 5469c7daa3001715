package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Will-Luck/sally-agent/internal/clock"
	"github.com/Will-Luck/sally-agent/internal/logging"
	"github.com/Will-Luck/sally-agent/internal/store"
)

func TestRevocationCueRouterPinsDrainedCues(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "escrow.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tel := newMockTELEngine()
	tel.queueCue("RQVI", "ESAID1")
	tel.queueCue("RQVI", "ESAID2")

	router := &RevocationCueRouter{
		Escrow: st,
		TEL:    tel,
		Clock:  clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Log:    logging.New(false),
	}

	if err := router.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	for _, said := range []string{"ESAID1", "ESAID2"} {
		if _, ok, err := st.Get(store.TableRev, said); err != nil || !ok {
			t.Errorf("Get(rev, %q) = ok=%v err=%v, want pinned", said, ok, err)
		}
	}

	// A second sweep with nothing queued must not repin anything new, and
	// must not error just because the queue is empty.
	if err := router.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	n, err := st.Len(store.TableRev)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Fatalf("Len(rev) = %d, want 2", n)
	}
}
