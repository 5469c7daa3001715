package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Will-Luck/sally-agent/internal/acdc"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "localstore.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissingCredential(t *testing.T) {
	s := openTest(t)
	_, ok, err := s.Get(context.Background(), "ENOTFOUND")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unseeded credential")
	}
}

func TestSeedThenGet(t *testing.T) {
	s := openTest(t)
	cred := acdc.Credential{SAID: "ECRED", SchemaSAID: "ESCHEMA", Issuer: "EISSUER"}
	if err := s.Seed(cred); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	got, ok, err := s.Get(context.Background(), "ECRED")
	if err != nil || !ok {
		t.Fatalf("Get: got=%v ok=%v err=%v", got, ok, err)
	}
	if got.SchemaSAID != "ESCHEMA" || got.Issuer != "EISSUER" {
		t.Errorf("Get = %+v, want matching schema/issuer", got)
	}
}

func TestStateDefaultsToAbsent(t *testing.T) {
	s := openTest(t)
	state, err := s.State(context.Background(), "EREGI", "ECRED")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Status != acdc.TELAbsent {
		t.Errorf("Status = %v, want TELAbsent", state.Status)
	}
}

func TestSetIssuedThenRevoked(t *testing.T) {
	s := openTest(t)
	if err := s.SetIssued("EREGI", "ECRED"); err != nil {
		t.Fatalf("SetIssued: %v", err)
	}
	state, err := s.State(context.Background(), "EREGI", "ECRED")
	if err != nil || state.Status != acdc.TELIssued {
		t.Fatalf("State after SetIssued = %+v, err=%v", state, err)
	}

	revokedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SetRevoked("EREGI", "ECRED", revokedAt); err != nil {
		t.Fatalf("SetRevoked: %v", err)
	}
	state, err = s.State(context.Background(), "EREGI", "ECRED")
	if err != nil || state.Status != acdc.TELRevoked || !state.RevocationTimestamp.Equal(revokedAt) {
		t.Fatalf("State after SetRevoked = %+v, err=%v", state, err)
	}
}

func TestSetRevokedQueuesCueOnlyForPresentedCredential(t *testing.T) {
	s := openTest(t)
	if err := s.SetIssued("EREGI", "ECRED"); err != nil {
		t.Fatalf("SetIssued: %v", err)
	}
	if err := s.SetRevoked("EREGI", "ECRED", time.Now()); err != nil {
		t.Fatalf("SetRevoked: %v", err)
	}
	cues, err := s.DrainRevocationCues(context.Background())
	if err != nil {
		t.Fatalf("DrainRevocationCues: %v", err)
	}
	if len(cues) != 0 {
		t.Fatalf("cues = %+v, want none for a credential never presented to this agent", cues)
	}

	if err := s.Seed(acdc.Credential{SAID: "ESEEDED"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := s.SetIssued("EREGI", "ESEEDED"); err != nil {
		t.Fatalf("SetIssued: %v", err)
	}
	if err := s.SetRevoked("EREGI", "ESEEDED", time.Now()); err != nil {
		t.Fatalf("SetRevoked: %v", err)
	}
	cues, err = s.DrainRevocationCues(context.Background())
	if err != nil {
		t.Fatalf("DrainRevocationCues: %v", err)
	}
	if len(cues) != 1 || cues[0].SAID != "ESEEDED" || cues[0].Regi != "EREGI" {
		t.Fatalf("cues = %+v, want one cue for ESEEDED", cues)
	}
}

func TestDrainRevocationCuesIsOneShot(t *testing.T) {
	s := openTest(t)
	if err := s.Seed(acdc.Credential{SAID: "ECRED"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := s.SetRevoked("EREGI", "ECRED", time.Now()); err != nil {
		t.Fatalf("SetRevoked: %v", err)
	}

	first, err := s.DrainRevocationCues(context.Background())
	if err != nil || len(first) != 1 {
		t.Fatalf("first drain = %+v, err=%v, want exactly one cue", first, err)
	}
	second, err := s.DrainRevocationCues(context.Background())
	if err != nil || len(second) != 0 {
		t.Fatalf("second drain = %+v, err=%v, want no cues left", second, err)
	}

	// A repeated SetRevoked for an already-revoked credential is not a new
	// transition and must not requeue a cue.
	if err := s.SetRevoked("EREGI", "ECRED", time.Now()); err != nil {
		t.Fatalf("SetRevoked (repeat): %v", err)
	}
	third, err := s.DrainRevocationCues(context.Background())
	if err != nil || len(third) != 0 {
		t.Fatalf("third drain = %+v, err=%v, want no cue on a repeat transition", third, err)
	}
}

func TestStateIsolatedPerRegistry(t *testing.T) {
	s := openTest(t)
	if err := s.SetIssued("EREGI1", "ECRED"); err != nil {
		t.Fatalf("SetIssued: %v", err)
	}
	state, err := s.State(context.Background(), "EREGI2", "ECRED")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Status != acdc.TELAbsent {
		t.Errorf("Status under different registry = %v, want TELAbsent", state.Status)
	}
}
