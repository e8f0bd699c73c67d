package db

// Schema creates every table of the reference application. Statements are
// idempotent so Open can run them on every start.
const Schema = `
-- Accounts
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE COLLATE NOCASE,
    email TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash TEXT NOT NULL,
    full_name TEXT NOT NULL,
    birthdate TEXT NOT NULL,
    country_alpha2 TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user', 'admin', 'superuser')),
    disabled_at INTEGER,
    created_at INTEGER NOT NULL
);

-- Sessions: one row per signed-in browser
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    expires_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

-- Websites: each is served at <subdomain>.<domain>
CREATE TABLE IF NOT EXISTS websites (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    subdomain TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_websites_user_id ON websites(user_id);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_websites USING fts5(
    name,
    description,
    content='websites',
    content_rowid='rowid'
);
CREATE TRIGGER IF NOT EXISTS websites_ai AFTER INSERT ON websites BEGIN
    INSERT INTO fts_websites(rowid, name, description)
    VALUES (new.rowid, new.name, new.description);
END;
CREATE TRIGGER IF NOT EXISTS websites_ad AFTER DELETE ON websites BEGIN
    INSERT INTO fts_websites(fts_websites, rowid, name, description)
    VALUES ('delete', old.rowid, old.name, old.description);
END;

-- Posts
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    website_id TEXT NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    content TEXT NOT NULL CHECK(length(content) <= 1048576),
    cover_image_key TEXT NOT NULL DEFAULT '',
    attached_image_keys TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_website_id ON posts(website_id, created_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_posts USING fts5(
    title,
    content,
    content='posts',
    content_rowid='rowid'
);
CREATE TRIGGER IF NOT EXISTS posts_ai AFTER INSERT ON posts BEGIN
    INSERT INTO fts_posts(rowid, title, content)
    VALUES (new.rowid, new.title, new.content);
END;
CREATE TRIGGER IF NOT EXISTS posts_ad AFTER DELETE ON posts BEGIN
    INSERT INTO fts_posts(fts_posts, rowid, title, content)
    VALUES ('delete', old.rowid, old.title, old.content);
END;
`

// resetTables lists the tables cleared by Reset, children first.
var resetTables = []string{"posts", "websites", "sessions", "users"}
