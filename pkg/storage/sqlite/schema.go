package sqlite

// Timestamps are unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'private',
		created_at INTEGER NOT NULL,
		last_activity_at INTEGER NOT NULL,
		finalized_at INTEGER,
		summarized_at INTEGER,
		summary_version INTEGER NOT NULL DEFAULT 0,
		message_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, finalized_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_idle ON chats(finalized_at, last_activity_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		parts TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at, seq)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content='messages',
		content_rowid='seq',
		tokenize='unicode61'
	)`,
	`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.seq, old.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.seq, old.content);
		INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
	END`,
	`CREATE TABLE IF NOT EXISTS memory_summary (
		user_id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memory_summary_versions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(user_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS distilled_memory (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tier INTEGER NOT NULL CHECK (tier BETWEEN 1 AND 3),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_distilled_user_tier ON distilled_memory(user_id, tier, created_at)`,
	`CREATE TABLE IF NOT EXISTS distilled_sources (
		entry_id TEXT NOT NULL REFERENCES distilled_memory(id) ON DELETE CASCADE,
		chat_id TEXT NOT NULL,
		PRIMARY KEY (entry_id, chat_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_distilled_sources_chat ON distilled_sources(chat_id)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		vector BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (source_type, source_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_user ON embeddings(user_id, source_type)`,
}
