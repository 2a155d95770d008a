package store

// schemaStatements are executed in order on Open. All statements are
// idempotent so migration is safe to run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS client_contexts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		document TEXT NOT NULL DEFAULT '{}',
		performance_metrics TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(client_id, capability)
	)`,
	`CREATE TABLE IF NOT EXISTS context_updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		capability TEXT NOT NULL DEFAULT 'general',
		source TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		confidence REAL NOT NULL DEFAULT 0,
		requires_approval INTEGER NOT NULL DEFAULT 0,
		approved INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_context_updates_pending
		ON context_updates(requires_approval, approved, confidence DESC, created_at ASC)`,
	`CREATE TABLE IF NOT EXISTS context_performance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		context_version INTEGER NOT NULL DEFAULT 0,
		metric_name TEXT NOT NULL,
		metric_value REAL NOT NULL,
		recorded_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_context_performance_key
		ON context_performance(client_id, capability, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS cross_population_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern_type TEXT NOT NULL,
		industry TEXT NOT NULL DEFAULT '',
		company_size TEXT NOT NULL DEFAULT '',
		pattern_data TEXT NOT NULL DEFAULT '{}',
		success_rate REAL NOT NULL DEFAULT 0,
		sample_size INTEGER NOT NULL DEFAULT 0,
		confidence_score REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_segment
		ON cross_population_patterns(industry, company_size, success_rate DESC)`,
	`CREATE TABLE IF NOT EXISTS step_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		step_key TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		stale INTEGER NOT NULL DEFAULT 0,
		stale_reason TEXT,
		generated_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(project, step_key)
	)`,
}
