package pipeline

import (
	"context"
	"sync"

	"github.com/Will-Luck/sally-agent/internal/acdc"
	"github.com/Will-Luck/sally-agent/internal/collab"
)

type mockACDCStore struct {
	mu    sync.Mutex
	creds map[string]acdc.Credential
}

func newMockACDCStore() *mockACDCStore {
	return &mockACDCStore{creds: make(map[string]acdc.Credential)}
}

func (m *mockACDCStore) put(c acdc.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.SAID] = c
}

func (m *mockACDCStore) Get(_ context.Context, said string) (acdc.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[said]
	return c, ok, nil
}

var _ collab.ACDCStore = (*mockACDCStore)(nil)

type mockTELEngine struct {
	mu     sync.Mutex
	states map[string]acdc.TELState
	cues   []collab.RevocationCue
}

func newMockTELEngine() *mockTELEngine {
	return &mockTELEngine{states: make(map[string]acdc.TELState)}
}

func (m *mockTELEngine) set(said string, s acdc.TELState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[said] = s
}

func (m *mockTELEngine) State(_ context.Context, _ string, said string) (acdc.TELState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[said]
	if !ok {
		return acdc.TELState{Status: acdc.TELAbsent}, nil
	}
	return s, nil
}

// queueCue adds a revocation cue that the next DrainRevocationCues call
// will return, mimicking the localstore's bbolt-backed cue queue.
func (m *mockTELEngine) queueCue(regi, said string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cues = append(m.cues, collab.RevocationCue{Regi: regi, SAID: said})
}

func (m *mockTELEngine) DrainRevocationCues(_ context.Context) ([]collab.RevocationCue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cues := m.cues
	m.cues = nil
	return cues, nil
}

var _ collab.TELEngine = (*mockTELEngine)(nil)

// mockQueue is an empty NotificationQueue: these tests drive escrow state
// directly rather than through Notice Intake, so Next always reports empty.
type mockQueue struct{}

func (mockQueue) Next(_ context.Context) (collab.Notice, bool, error) {
	return collab.Notice{}, false, nil
}

func (mockQueue) Ack(_ context.Context, _ string) error { return nil }

var _ collab.NotificationQueue = mockQueue{}

type mockParser struct{}

func (mockParser) ParseOne(_ context.Context, _ []byte) ([]acdc.Credential, error) {
	return nil, nil
}

var _ collab.Parser = mockParser{}
