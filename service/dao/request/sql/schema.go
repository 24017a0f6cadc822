package sql

const schema = `CREATE TABLE IF NOT EXISTS approval_requests (
	id                TEXT PRIMARY KEY,
	full_request_id   TEXT NOT NULL UNIQUE,
	description       TEXT NOT NULL,
	requester         TEXT NOT NULL,
	recipient_address TEXT NOT NULL,
	recipient         TEXT NOT NULL,
	status            TEXT NOT NULL,
	created_at        BIGINT NOT NULL,
	expires_at        BIGINT NOT NULL,
	responded_at      BIGINT,
	response_text     TEXT
)`

const statusIndex = `CREATE INDEX IF NOT EXISTS idx_approval_requests_status ON approval_requests(status, recipient)`

const columns = `id, full_request_id, description, requester, recipient_address, status, created_at, expires_at, responded_at, response_text`
