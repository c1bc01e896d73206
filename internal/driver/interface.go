package driver

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphDriver is the Cypher surface CBNStore needs: session snapshots are written and read
// as CBNSession, Variable and CAUSES records. MemgraphDriver implements it over Bolt; tests
// substitute a recording fake.
type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error)
	// BuildIndices creates the lookup indices on session_id. Failures are not fatal.
	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}
