package database

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	`
	CREATE TABLE channel (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		stream TEXT NOT NULL,
		number INTEGER,
		icon TEXT
	);
	CREATE INDEX idx_channel_name ON channel(name);
	CREATE INDEX idx_channel_stream ON channel(stream);
	CREATE INDEX idx_channel_number ON channel(number);
	CREATE INDEX idx_channel_icon ON channel(icon);

	CREATE TABLE programme (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		start INTEGER NOT NULL,
		stop INTEGER NOT NULL CHECK (stop > start),
		title TEXT,
		sub_title TEXT,
		description TEXT,
		season INTEGER,
		total_seasons INTEGER,
		episode INTEGER,
		episodes_in_season INTEGER,
		part INTEGER,
		parts_in_episode INTEGER
	);
	CREATE INDEX idx_programme_channel_id ON programme(channel_id);
	CREATE INDEX idx_programme_start ON programme(start);
	CREATE INDEX idx_programme_stop ON programme(stop);
	CREATE INDEX idx_programme_title ON programme(title);
	CREATE INDEX idx_programme_season ON programme(season);
	CREATE INDEX idx_programme_total_seasons ON programme(total_seasons);
	CREATE INDEX idx_programme_episode ON programme(episode);
	CREATE INDEX idx_programme_episodes_in_season ON programme(episodes_in_season);
	CREATE INDEX idx_programme_part ON programme(part);
	CREATE INDEX idx_programme_parts_in_episode ON programme(parts_in_episode);

	CREATE TABLE category (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE programme_category (
		programme_id INTEGER NOT NULL REFERENCES programme(id) ON DELETE CASCADE,
		category_id INTEGER NOT NULL REFERENCES category(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		PRIMARY KEY (programme_id, position)
	);
	CREATE INDEX idx_programme_category_category ON programme_category(category_id);
	`,
	`
	CREATE TABLE setting (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,
}
