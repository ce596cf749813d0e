package settings

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workspaces (
    path TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    accessed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workspaces_accessed_at ON workspaces(accessed_at);

CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    workspace_path TEXT NOT NULL REFERENCES workspaces(path),
    name TEXT NOT NULL,
    accessed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_workspace ON campaigns(workspace_path);
CREATE INDEX IF NOT EXISTS idx_campaigns_accessed_at ON campaigns(accessed_at);
`
