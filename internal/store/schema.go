package store

const schema = `
CREATE TABLE IF NOT EXISTS pinned_devices (
    device_id TEXT PRIMARY KEY,
    pinned_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_names (
    snapshot_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS push_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL,
    bundle_id TEXT NOT NULL,
    payload TEXT,
    success BOOLEAN NOT NULL,
    output TEXT,
    sent_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_push_target ON push_history(device_id, bundle_id);
CREATE INDEX IF NOT EXISTS idx_push_sent_at ON push_history(sent_at);
`
