package postgres

// SQL queries for the documents read store and the user lookup.
// An empty version argument ($3) disables the version guard.

const (
	// queryUpsertDocument inserts or replaces a document by (collection, id).
	queryUpsertDocument = `
		INSERT INTO documents (collection, id, version, body, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET version = EXCLUDED.version, body = EXCLUDED.body, updated_at = now()
	`

	// queryReplaceIfVersion replaces a document only when its stored version matches.
	// Zero affected rows means the guard rejected the write.
	queryReplaceIfVersion = `
		UPDATE documents
		SET version = NULLIF($4, ''), body = $5, updated_at = now()
		WHERE collection = $1 AND id = $2 AND version = $3
	`

	// queryInsertIfAbsent inserts a document unless one with the same id exists.
	// ON CONFLICT DO NOTHING affects zero rows for duplicates.
	queryInsertIfAbsent = `
		INSERT INTO documents (collection, id, version, body, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now())
		ON CONFLICT (collection, id) DO NOTHING
	`

	queryRemoveDocument = `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2 AND ($3 = '' OR version = $3)
	`

	queryFindDocument = `
		SELECT body, version
		FROM documents
		WHERE collection = $1 AND id = $2 AND ($3 = '' OR version = $3)
	`

	queryDocumentExists = `
		SELECT EXISTS (
			SELECT 1 FROM documents
			WHERE collection = $1 AND id = $2 AND ($3 = '' OR version = $3)
		)
	`

	// queryFindUserByHashedToken resolves a login token hash to its user.
	queryFindUserByHashedToken = `
		SELECT u.id, u.username, u.roles
		FROM users u
		JOIN user_login_tokens t ON t.user_id = u.id
		WHERE t.hashed_token = $1
		LIMIT 1
	`

	querySchemaExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'documents'
		)
	`
)
