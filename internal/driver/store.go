package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/cbning/internal/core/model"
	apperrors "github.com/agenthands/cbning/internal/errors"
)

// ErrSnapshotNotFound is wrapped by Load when no snapshot exists for the session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// CBNStore persists committed networks in Memgraph, one snapshot per session.
type CBNStore struct {
	Driver GraphDriver
	now    func() time.Time
}

func NewCBNStore(d GraphDriver) *CBNStore {
	return &CBNStore{Driver: d, now: time.Now}
}

// Save replaces the stored snapshot of sessionID with g.
func (s *CBNStore) Save(ctx context.Context, sessionID string, g model.CBN) error {
	_, err := s.Driver.ExecuteQuery(ctx, SaveSessionQuery, map[string]interface{}{
		"session_id": sessionID,
		"updated_at": s.now().UTC().Format(time.RFC3339Nano),
		"node_count": len(g.Nodes),
		"edge_count": len(g.Edges),
	})
	if err != nil {
		return apperrors.NewStoreFailed(sessionID, "save", err)
	}

	if len(g.Nodes) > 0 {
		variables := make([]map[string]interface{}, 0, len(g.Nodes))
		for i, n := range g.Nodes {
			var cpd string
			if c, ok := g.CPDs[n.Name]; ok {
				raw, err := json.Marshal(c)
				if err != nil {
					return apperrors.NewStoreFailed(sessionID, "save", fmt.Errorf("encode CPD for %s: %w", n.Name, err))
				}
				cpd = string(raw)
			}
			variables = append(variables, map[string]interface{}{
				"name":       n.Name,
				"states":     n.States,
				"observable": n.Observable,
				"position":   i,
				"cpd":        cpd,
			})
		}
		if _, err := s.Driver.ExecuteQuery(ctx, SaveVariablesQuery, map[string]interface{}{
			"session_id": sessionID,
			"variables":  variables,
		}); err != nil {
			return apperrors.NewStoreFailed(sessionID, "save", err)
		}
	}

	if len(g.Edges) > 0 {
		edges := make([]map[string]interface{}, 0, len(g.Edges))
		for i, e := range g.Edges {
			edges = append(edges, map[string]interface{}{"from": e.From, "to": e.To, "position": i})
		}
		if _, err := s.Driver.ExecuteQuery(ctx, SaveCausesQuery, map[string]interface{}{
			"session_id": sessionID,
			"edges":      edges,
		}); err != nil {
			return apperrors.NewStoreFailed(sessionID, "save", err)
		}
	}
	return nil
}

// Load rebuilds the stored network. It does not validate it.
func (s *CBNStore) Load(ctx context.Context, sessionID string) (model.CBN, error) {
	params := map[string]interface{}{"session_id": sessionID}

	res, err := s.Driver.ExecuteQuery(ctx, GetSessionQuery, params)
	if err != nil {
		return model.CBN{}, apperrors.NewStoreFailed(sessionID, "load", err)
	}
	if len(res.Records) == 0 {
		return model.CBN{}, apperrors.NewStoreFailed(sessionID, "load", ErrSnapshotNotFound)
	}

	g := model.CBN{Nodes: []model.Node{}, Edges: []model.Edge{}, CPDs: map[string]model.CPD{}}

	res, err = s.Driver.ExecuteQuery(ctx, GetVariablesQuery, params)
	if err != nil {
		return model.CBN{}, apperrors.NewStoreFailed(sessionID, "load", err)
	}
	for _, rec := range res.Records {
		n := model.Node{
			Name:       getString(rec, "name"),
			States:     getStrings(rec, "states"),
			Observable: getBool(rec, "observable"),
		}
		g.Nodes = append(g.Nodes, n)

		raw := getString(rec, "cpd")
		if raw == "" {
			continue
		}
		var cpd model.CPD
		if err := json.Unmarshal([]byte(raw), &cpd); err != nil {
			return model.CBN{}, apperrors.NewStoreFailed(sessionID, "load", fmt.Errorf("decode CPD for %s: %w", n.Name, err))
		}
		g.CPDs[n.Name] = cpd
	}

	res, err = s.Driver.ExecuteQuery(ctx, GetCausesQuery, params)
	if err != nil {
		return model.CBN{}, apperrors.NewStoreFailed(sessionID, "load", err)
	}
	for _, rec := range res.Records {
		g.Edges = append(g.Edges, model.Edge{From: getString(rec, "from"), To: getString(rec, "to")})
	}
	return g, nil
}

func (s *CBNStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.Driver.ExecuteQuery(ctx, DeleteSessionQuery, map[string]interface{}{"session_id": sessionID}); err != nil {
		return apperrors.NewStoreFailed(sessionID, "delete", err)
	}
	return nil
}

// List returns stored session ids, most recently saved first.
func (s *CBNStore) List(ctx context.Context) ([]string, error) {
	res, err := s.Driver.ExecuteQuery(ctx, ListSessionsQuery, nil)
	if err != nil {
		return nil, apperrors.NewStoreFailed("*", "list", err)
	}
	ids := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		ids = append(ids, getString(rec, "id"))
	}
	return ids, nil
}

func getString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func getBool(rec *neo4j.Record, key string) bool {
	v, _ := rec.Get(key)
	b, _ := v.(bool)
	return b
}

func getStrings(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	switch xs := v.(type) {
	case []string:
		return xs
	case []interface{}:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
