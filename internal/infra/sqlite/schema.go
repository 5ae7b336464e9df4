package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Accounts and their ledgers
		`CREATE TABLE IF NOT EXISTS accounts (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			email           TEXT NOT NULL UNIQUE,
			role            TEXT NOT NULL,
			xp              INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
			level           INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
			tasks_completed INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		)`,

		// Earned badges, unique per account
		`CREATE TABLE IF NOT EXISTS badge_awards (
			user_id   TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			badge_id  TEXT NOT NULL,
			name      TEXT NOT NULL,
			earned_at TEXT NOT NULL,
			PRIMARY KEY (user_id, badge_id)
		)`,

		// XP audit trail (append-only)
		`CREATE TABLE IF NOT EXISTS xp_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			amount     INTEGER NOT NULL CHECK (amount > 0),
			reason     TEXT NOT NULL,
			project_id TEXT,
			task_id    TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_user ON xp_events(user_id, id)`,

		// Projects. manager_id stays NULL until a PM is assigned.
		`CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			client_id   TEXT NOT NULL,
			manager_id  TEXT,
			status      TEXT NOT NULL DEFAULT 'pending',
			budget      INTEGER NOT NULL DEFAULT 0,
			deadline    TEXT,
			tech_stack  TEXT NOT NULL DEFAULT '[]',
			total_xp    INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_client ON projects(client_id)`,

		`CREATE TABLE IF NOT EXISTS team_members (
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL,
			status     TEXT NOT NULL,
			joined_at  TEXT NOT NULL,
			PRIMARY KEY (project_id, user_id)
		)`,

		// Tasks
		`CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			assigned_to  TEXT,
			status       TEXT NOT NULL DEFAULT 'todo',
			priority     TEXT NOT NULL DEFAULT 'medium',
			difficulty   TEXT NOT NULL DEFAULT 'medium',
			xp_points    INTEGER NOT NULL CHECK (xp_points BETWEEN 10 AND 1000),
			due_date     TEXT,
			completed_at TEXT,
			completed_by TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assigned_to, created_at)`,
	}
}

// resetOrder lists tables child-first so foreign keys never block a wipe.
var resetOrder = []string{
	"tasks",
	"team_members",
	"projects",
	"xp_events",
	"badge_awards",
	"accounts",
}
