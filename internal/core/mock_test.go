package core

import (
	"context"
	"errors"
	"sync"

	"github.com/agenthands/cbning/internal/core/model"
)

type translateResult struct {
	Translation *model.Translation
	Err         error
}

// MockTranslator answers from Queue in order, then from Default.
type MockTranslator struct {
	mu      sync.Mutex
	Queue   []translateResult
	Default translateResult
	Block   bool
	Calls   int
	OnCall  func()
}

func (m *MockTranslator) Translate(ctx context.Context, current model.CBN, text string) (*model.Translation, error) {
	m.mu.Lock()
	m.Calls++
	res := m.Default
	if len(m.Queue) > 0 {
		res = m.Queue[0]
		m.Queue = m.Queue[1:]
	}
	block, onCall := m.Block, m.OnCall
	m.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return res.Translation, res.Err
}

type MockInterpreter struct {
	mu       sync.Mutex
	Response string
	Err      error
	Calls    int
}

func (m *MockInterpreter) Interpret(ctx context.Context, g model.CBN) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

var errNotStored = errors.New("not stored")

type MockStore struct {
	mu        sync.Mutex
	Snapshots map[string]model.CBN
	SaveErr   error
	Saves     int
	// LoadBlock makes Load wait for ctx to end.
	LoadBlock bool
}

func NewMockStore() *MockStore {
	return &MockStore{Snapshots: map[string]model.CBN{}}
}

func (m *MockStore) Save(ctx context.Context, sessionID string, g model.CBN) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Snapshots[sessionID] = g.Clone()
	return nil
}

func (m *MockStore) Load(ctx context.Context, sessionID string) (model.CBN, error) {
	m.mu.Lock()
	block := m.LoadBlock
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return model.CBN{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.Snapshots[sessionID]
	if !ok {
		return model.CBN{}, errNotStored
	}
	return g.Clone(), nil
}

func (m *MockStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Snapshots, sessionID)
	return nil
}

func (m *MockStore) Get(sessionID string) (model.CBN, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.Snapshots[sessionID]
	return g, ok
}

func diffResult(d model.ProposedDiff) translateResult {
	return translateResult{Translation: &model.Translation{
		Diff:        &d,
		Suggestions: []string{"Consider funding"},
		Prompts:     []string{"How strong is it?"},
		Subclaims:   []string{"Education helps"},
	}}
}

func boolPtr(b bool) *bool { return &b }

func educationDiff() model.ProposedDiff {
	return model.ProposedDiff{
		Nodes:    []model.NodePatch{{Name: "Education Programs", States: []string{"Low", "High"}, Observable: boolPtr(true)}},
		AddEdges: []model.Edge{{From: "Education Programs", To: "Community Health"}},
		CPDs: map[string]model.CPD{
			"Education Programs": {Parents: []string{}, Probabilities: map[string][]float64{"": {0.4, 0.6}}},
		},
	}
}
