package store

import (
	"fmt"

	"mira/internal/model"
)

// schemaVersion is the current migration tip. Applied migrations are
// recorded in schema_migrations; Open re-applies only the delta, matching
// the teacher's versioned-migration pattern in migrations.go.
const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL);`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		parent_session_id TEXT,
		message_count INTEGER NOT NULL DEFAULT 0,
		last_active INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		parent_id INTEGER,
		kind TEXT NOT NULL DEFAULT '',
		summarized_through INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at, id);`,

	`CREATE TABLE IF NOT EXISTS analyses (
		message_id INTEGER PRIMARY KEY,
		salience REAL NOT NULL,
		original_salience REAL NOT NULL,
		mood TEXT,
		intensity REAL NOT NULL DEFAULT 0,
		intent TEXT,
		topics TEXT NOT NULL DEFAULT '[]',
		summary TEXT,
		contains_code INTEGER NOT NULL DEFAULT 0,
		programming_lang TEXT,
		contains_error INTEGER NOT NULL DEFAULT 0,
		error_type TEXT,
		error_severity TEXT,
		error_file TEXT,
		routed_to_heads TEXT NOT NULL DEFAULT '[]',
		recall_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (message_id) REFERENCES messages(id)
	);`,

	`CREATE TABLE IF NOT EXISTS embedding_refs (
		message_id INTEGER NOT NULL,
		head TEXT NOT NULL,
		point_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (message_id, head),
		FOREIGN KEY (message_id) REFERENCES messages(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_embedding_refs_point ON embedding_refs(head, point_id);`,

	`CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		result TEXT,
		error TEXT,
		created_at INTEGER NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		operation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		file_path TEXT,
		language TEXT,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		diff TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (operation_id) REFERENCES operations(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_op_path ON artifacts(operation_id, file_path, created_at);`,

	`CREATE TABLE IF NOT EXISTS injections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_session_id TEXT NOT NULL,
		source_session_id TEXT NOT NULL,
		injection_type TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		sequence_num INTEGER NOT NULL,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		acknowledged_at INTEGER,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_injections_target_seq ON injections(target_session_id, sequence_num);`,

	`CREATE TABLE IF NOT EXISTS code_elements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id TEXT NOT NULL,
		language TEXT NOT NULL,
		element_type TEXT NOT NULL,
		name TEXT NOT NULL,
		full_path TEXT NOT NULL,
		visibility TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		content TEXT NOT NULL,
		signature_hash TEXT NOT NULL,
		complexity_score INTEGER NOT NULL DEFAULT 1,
		is_test INTEGER NOT NULL DEFAULT 0,
		is_async INTEGER NOT NULL DEFAULT 0,
		documentation TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(file_id, full_path)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_code_elements_file ON code_elements(file_id);`,
	`CREATE INDEX IF NOT EXISTS idx_code_elements_sig ON code_elements(full_path, signature_hash);`,

	`CREATE TABLE IF NOT EXISTS quality_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		element_id INTEGER NOT NULL,
		detector TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (element_id) REFERENCES code_elements(id)
	);`,

	`CREATE TABLE IF NOT EXISTS external_dependencies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_external_deps_file ON external_dependencies(file_id);`,

	`CREATE TABLE IF NOT EXISTS review_findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		element_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (element_id) REFERENCES code_elements(id)
	);`,

	`CREATE TABLE IF NOT EXISTS memory_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		fact_type TEXT NOT NULL,
		content TEXT NOT NULL,
		confidence REAL NOT NULL,
		session_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_memory_facts_user ON memory_facts(user_id, status);`,

	`CREATE TABLE IF NOT EXISTS learned_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		pattern_name TEXT NOT NULL,
		confidence REAL NOT NULL,
		times_observed INTEGER NOT NULL DEFAULT 0,
		times_applied INTEGER NOT NULL DEFAULT 0,
		deprecated INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(user_id, pattern_type, pattern_name)
	);`,

	`CREATE TABLE IF NOT EXISTS doc_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_type TEXT NOT NULL,
		target_doc_path TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		source_signature_hash TEXT NOT NULL,
		target_doc_checksum_at_generation TEXT NOT NULL,
		draft_content TEXT,
		draft_sha256 TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
}

func (s *Store) migrate() error {
	// schema_migrations itself may not exist yet; create it first.
	if _, err := s.db.Exec(migrations[0]); err != nil {
		return &model.StorageError{Kind: model.StorageMigration, Err: fmt.Errorf("bootstrapping schema_migrations: %w", err)}
	}
	var current int
	_ = s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range migrations[1:] {
		if _, err := s.db.Exec(stmt); err != nil {
			return &model.StorageError{Kind: model.StorageMigration, Err: fmt.Errorf("applying migration: %w", err)}
		}
	}
	if _, err := s.db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, schemaVersion); err != nil {
		return &model.StorageError{Kind: model.StorageMigration, Err: err}
	}
	return nil
}
