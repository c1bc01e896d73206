package driver

// A snapshot is one CBNSession node owning its Variable nodes. CAUSES relationships carry
// the causal edges; each variable keeps its CPD as a JSON string because Memgraph
// properties cannot hold nested maps of lists reliably. position preserves declaration order.
const (
	SaveSessionQuery = `
		MERGE (s:CBNSession {id: $session_id})
		SET s.updated_at = $updated_at,
			s.node_count = $node_count,
			s.edge_count = $edge_count
		WITH s
		OPTIONAL MATCH (s)-[:HAS_VARIABLE]->(v:Variable)
		DETACH DELETE v
		RETURN DISTINCT s.id AS id
	`

	SaveVariablesQuery = `
		MATCH (s:CBNSession {id: $session_id})
		UNWIND $variables AS var
		CREATE (s)-[:HAS_VARIABLE]->(v:Variable {
			session_id: $session_id,
			name: var.name,
			states: var.states,
			observable: var.observable,
			position: var.position,
			cpd: var.cpd
		})
		RETURN count(v) AS created
	`

	SaveCausesQuery = `
		UNWIND $edges AS edge
		MATCH (a:Variable {session_id: $session_id, name: edge.from})
		MATCH (b:Variable {session_id: $session_id, name: edge.to})
		CREATE (a)-[c:CAUSES {position: edge.position}]->(b)
		RETURN count(c) AS created
	`

	GetSessionQuery = `
		MATCH (s:CBNSession {id: $session_id})
		RETURN s.id AS id, s.updated_at AS updated_at
	`

	GetVariablesQuery = `
		MATCH (:CBNSession {id: $session_id})-[:HAS_VARIABLE]->(v:Variable)
		RETURN v.name AS name, v.states AS states, v.observable AS observable, v.cpd AS cpd
		ORDER BY v.position
	`

	GetCausesQuery = `
		MATCH (a:Variable {session_id: $session_id})-[c:CAUSES]->(b:Variable {session_id: $session_id})
		RETURN a.name AS from, b.name AS to
		ORDER BY c.position
	`

	DeleteSessionQuery = `
		MATCH (s:CBNSession {id: $session_id})
		OPTIONAL MATCH (s)-[:HAS_VARIABLE]->(v:Variable)
		DETACH DELETE v, s
	`

	ListSessionsQuery = `
		MATCH (s:CBNSession)
		RETURN s.id AS id
		ORDER BY s.updated_at DESC
	`
)

var IndexQueries = []string{
	"CREATE INDEX ON :CBNSession(id);",
	"CREATE INDEX ON :Variable(session_id);",
	"CREATE INDEX ON :Variable(name);",
}
