package repository

// Schema definitions for the RegTools database.
// Compatible with both SQLite and PostgreSQL.

// schemaProfiles stores client profiles. The full profile is kept as JSON in
// data; the indexed columns cover tenant, client history and listing queries.
const schemaProfiles = `
CREATE TABLE IF NOT EXISTS client_profiles (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    client_id TEXT NOT NULL DEFAULT '',
    occupation TEXT NOT NULL DEFAULT '',
    risk_level TEXT NOT NULL DEFAULT '',
    operation TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_client_profiles_client ON client_profiles(tenant_id, client_id, created_at);
CREATE INDEX IF NOT EXISTS idx_client_profiles_created ON client_profiles(tenant_id, created_at);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    profile_id TEXT NOT NULL,
    status TEXT NOT NULL,
    verdict TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    report TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_profile ON evaluations(tenant_id, profile_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaProfiles,
		schemaEvaluations,
	}
}
