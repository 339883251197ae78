package db

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "events",
		sql: `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    timestamp TEXT NOT NULL,
    type TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    payload_json TEXT,
    metadata_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp, id);
CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`,
	},
	{
		version: 2,
		name:    "replies",
		sql: `
CREATE TABLE IF NOT EXISTS replies (
    id TEXT PRIMARY KEY,
    notification_id TEXT NOT NULL UNIQUE,
    status_id TEXT NOT NULL,
    reply_status_id TEXT,
    account TEXT NOT NULL,
    visibility TEXT NOT NULL,
    text TEXT NOT NULL,
    word_count INTEGER NOT NULL,
    regenerations INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replies_created ON replies(created_at);
CREATE INDEX IF NOT EXISTS idx_replies_account ON replies(account);
`,
	},
}
