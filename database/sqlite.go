package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"

	"livetv-guide/model"
)

// primary result code shared by every SQLITE_CONSTRAINT_* extended code
const sqliteConstraint = 19

// SQLite is the persistent Store.
type SQLite struct {
	db      *sql.DB
	version int
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OpenSQLite opens (creating if needed) the database at dbPath and brings
// its schema up to date. ":memory:" opens a private in-memory database.
func OpenSQLite(dbPath string) (*SQLite, error) {
	memory := dbPath == ":memory:"

	var connStr string
	if memory {
		connStr = fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("error creating data folder: %w", err)
		}
		connStr = dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening SQLite database: %w", err)
	}

	// every connection to a memory database needs to see the same data
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("error reading schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("error beginning migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error applying migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error recording migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("error committing migration %d: %w", i+1, err)
		}
	}

	s.version = len(migrations)
	return nil
}

func (s *SQLite) SchemaVersion() int {
	return s.version
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Count(ctx context.Context, c Collection) (int, error) {
	switch c {
	case Channels, Programmes, Categories:
	default:
		return 0, fmt.Errorf("unknown collection %q", c)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(c)).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting %s: %w", c, err)
	}
	return count, nil
}

const channelColumns = "id, name, stream, number, icon"

func (s *SQLite) GetChannel(ctx context.Context, id string) (model.Channel, error) {
	channels, err := queryChannels(ctx, s.db, "SELECT "+channelColumns+" FROM channel WHERE id = ?", id)
	if err != nil {
		return model.Channel{}, err
	}
	if len(channels) == 0 {
		return model.Channel{}, ErrNotFound
	}
	return channels[0], nil
}

func (s *SQLite) FindChannels(ctx context.Context, index ChannelIndex, value any) ([]model.Channel, error) {
	spec, err := channelIndex(index)
	if err != nil {
		return nil, err
	}
	arg, err := sqlArg(spec, value)
	if err != nil {
		return nil, err
	}

	return queryChannels(ctx, s.db,
		"SELECT "+channelColumns+" FROM channel WHERE "+spec.column+" = ? ORDER BY id", arg)
}

func (s *SQLite) ListChannels(ctx context.Context, index ChannelIndex) ([]model.Channel, error) {
	spec, err := channelIndex(index)
	if err != nil {
		return nil, err
	}

	return queryChannels(ctx, s.db, "SELECT "+channelColumns+" FROM channel ORDER BY "+orderBy(spec))
}

const programmeColumns = `id, channel_id, start, stop, title, sub_title, description,
	season, total_seasons, episode, episodes_in_season, part, parts_in_episode`

func (s *SQLite) GetProgramme(ctx context.Context, id int64) (model.Programme, error) {
	programmes, err := s.queryProgrammes(ctx, "SELECT "+programmeColumns+" FROM programme WHERE id = ?", id)
	if err != nil {
		return model.Programme{}, err
	}
	if len(programmes) == 0 {
		return model.Programme{}, ErrNotFound
	}
	return programmes[0], nil
}

func (s *SQLite) FindProgrammes(ctx context.Context, index ProgrammeIndex, value any) ([]model.Programme, error) {
	spec, err := programmeIndex(index)
	if err != nil {
		return nil, err
	}
	arg, err := sqlArg(spec, value)
	if err != nil {
		return nil, err
	}

	return s.queryProgrammes(ctx,
		"SELECT "+programmeColumns+" FROM programme WHERE "+spec.column+" = ? ORDER BY id", arg)
}

func (s *SQLite) ListProgrammes(ctx context.Context, index ProgrammeIndex) ([]model.Programme, error) {
	spec, err := programmeIndex(index)
	if err != nil {
		return nil, err
	}

	return s.queryProgrammes(ctx, "SELECT "+programmeColumns+" FROM programme ORDER BY "+orderBy(spec))
}

func (s *SQLite) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM category ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("error querying categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("error scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *SQLite) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *SQLite) ClearAll(ctx context.Context) error {
	return s.Update(ctx, func(tx Tx) error {
		return tx.Clear(AllCollections...)
	})
}

func (s *SQLite) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM setting WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO setting(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("error writing setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) DeleteSettings(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM setting WHERE key IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("error deleting settings: %w", err)
	}
	return nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqliteTx) AddChannel(ch model.Channel) error {
	_, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO channel("+channelColumns+") VALUES(?, ?, ?, ?, ?)",
		ch.ID, ch.Name, ch.Stream, nullInt(ch.Number), nullString(ch.Icon))
	if err != nil {
		return fmt.Errorf("error adding channel %q: %w", ch.ID, mapError(err))
	}
	return nil
}

func (t *sqliteTx) PutChannel(ch model.Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("%w: channel id is empty", ErrConstraint)
	}

	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO channel(`+channelColumns+`) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			stream = excluded.stream,
			number = excluded.number,
			icon = excluded.icon`,
		ch.ID, ch.Name, ch.Stream, nullInt(ch.Number), nullString(ch.Icon))
	if err != nil {
		return fmt.Errorf("error putting channel %q: %w", ch.ID, mapError(err))
	}
	return nil
}

func (t *sqliteTx) AddProgramme(p model.Programme) (int64, error) {
	if !p.Start.Before(p.Stop) {
		return 0, fmt.Errorf("%w: programme stop must be after start", ErrConstraint)
	}

	res, err := t.tx.ExecContext(t.ctx, `INSERT INTO programme(
			channel_id, start, stop, title, sub_title, description,
			season, total_seasons, episode, episodes_in_season, part, parts_in_episode)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ChannelID, p.Start.UnixMilli(), p.Stop.UnixMilli(),
		nullString(p.Title), nullString(p.SubTitle), nullString(p.Description),
		nullInt(p.Season), nullInt(p.TotalSeasons), nullInt(p.Episode),
		nullInt(p.EpisodesInSeason), nullInt(p.Part), nullInt(p.PartsInEpisode))
	if err != nil {
		return 0, fmt.Errorf("error adding programme: %w", mapError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading programme id: %w", err)
	}

	for position, c := range p.Categories {
		category, err := t.AddCategory(c.Name)
		if err != nil {
			return 0, err
		}
		if _, err := t.tx.ExecContext(t.ctx,
			"INSERT INTO programme_category(programme_id, category_id, position) VALUES(?, ?, ?)",
			id, category.ID, position); err != nil {
			return 0, fmt.Errorf("error linking category %q: %w", c.Name, mapError(err))
		}
	}

	return id, nil
}

func (t *sqliteTx) AddCategory(name string) (model.Category, error) {
	category := model.Category{Name: name}

	err := t.tx.QueryRowContext(t.ctx, "SELECT id FROM category WHERE name = ?", name).Scan(&category.ID)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Category{}, fmt.Errorf("error looking up category %q: %w", name, err)
	}

	res, err := t.tx.ExecContext(t.ctx, "INSERT INTO category(name) VALUES(?)", name)
	if err != nil {
		return model.Category{}, fmt.Errorf("error adding category %q: %w", name, mapError(err))
	}
	if category.ID, err = res.LastInsertId(); err != nil {
		return model.Category{}, fmt.Errorf("error reading category id: %w", err)
	}
	return category, nil
}

func (t *sqliteTx) Channels() ([]model.Channel, error) {
	return queryChannels(t.ctx, t.tx, "SELECT "+channelColumns+" FROM channel ORDER BY id")
}

func (t *sqliteTx) Clear(collections ...Collection) error {
	for _, c := range collections {
		var stmts []string
		switch c {
		case Programmes, Categories:
			stmts = []string{"DELETE FROM programme_category", "DELETE FROM " + string(c)}
		case Channels:
			stmts = []string{"DELETE FROM channel"}
		default:
			return fmt.Errorf("unknown collection %q", c)
		}

		for _, stmt := range stmts {
			if _, err := t.tx.ExecContext(t.ctx, stmt); err != nil {
				return fmt.Errorf("error clearing %s: %w", c, err)
			}
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func queryChannels(ctx context.Context, q querier, query string, args ...any) ([]model.Channel, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying channels: %w", err)
	}
	defer rows.Close()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func scanChannel(row scanner) (model.Channel, error) {
	var (
		ch     model.Channel
		number sql.NullInt64
		icon   sql.NullString
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Stream, &number, &icon); err != nil {
		return model.Channel{}, fmt.Errorf("error scanning channel: %w", err)
	}
	ch.Number = intFromNull(number)
	ch.Icon = icon.String
	return ch, nil
}

func (s *SQLite) queryProgrammes(ctx context.Context, query string, args ...any) ([]model.Programme, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying programmes: %w", err)
	}

	var programmes []model.Programme
	for rows.Next() {
		p, err := scanProgramme(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		programmes = append(programmes, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error reading programmes: %w", err)
	}

	if err := s.loadCategories(ctx, programmes); err != nil {
		return nil, err
	}
	return programmes, nil
}

func scanProgramme(row scanner) (model.Programme, error) {
	var (
		p                            model.Programme
		start, stop                  int64
		title, subTitle, description sql.NullString
		season, totalSeasons         sql.NullInt64
		episode, episodesInSeason    sql.NullInt64
		part, partsInEpisode         sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.ChannelID, &start, &stop, &title, &subTitle, &description,
		&season, &totalSeasons, &episode, &episodesInSeason, &part, &partsInEpisode)
	if err != nil {
		return model.Programme{}, fmt.Errorf("error scanning programme: %w", err)
	}

	p.Start = time.UnixMilli(start).UTC()
	p.Stop = time.UnixMilli(stop).UTC()
	p.Title = title.String
	p.SubTitle = subTitle.String
	p.Description = description.String
	p.Season = intFromNull(season)
	p.TotalSeasons = intFromNull(totalSeasons)
	p.Episode = intFromNull(episode)
	p.EpisodesInSeason = intFromNull(episodesInSeason)
	p.Part = intFromNull(part)
	p.PartsInEpisode = intFromNull(partsInEpisode)
	return p, nil
}

const categoryBatch = 500

func (s *SQLite) loadCategories(ctx context.Context, programmes []model.Programme) error {
	byID := make(map[int64]int, len(programmes))
	for i, p := range programmes {
		byID[p.ID] = i
	}

	for lo := 0; lo < len(programmes); lo += categoryBatch {
		hi := min(lo+categoryBatch, len(programmes))

		args := make([]any, 0, hi-lo)
		for _, p := range programmes[lo:hi] {
			args = append(args, p.ID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

		rows, err := s.db.QueryContext(ctx, `SELECT pc.programme_id, c.id, c.name
			FROM programme_category pc JOIN category c ON c.id = pc.category_id
			WHERE pc.programme_id IN (`+placeholders+`)
			ORDER BY pc.programme_id, pc.position`, args...)
		if err != nil {
			return fmt.Errorf("error querying programme categories: %w", err)
		}

		for rows.Next() {
			var (
				programmeID int64
				c           model.Category
			)
			if err := rows.Scan(&programmeID, &c.ID, &c.Name); err != nil {
				rows.Close()
				return fmt.Errorf("error scanning programme category: %w", err)
			}
			i := byID[programmeID]
			programmes[i].Categories = append(programmes[i].Categories, c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("error reading programme categories: %w", err)
		}
	}

	return nil
}

func orderBy(spec indexSpec) string {
	if spec.column == "id" {
		return "id"
	}
	return spec.column + " IS NULL, " + spec.column + ", id"
}

func sqlArg(spec indexSpec, value any) (any, error) {
	v, err := spec.normalize(value)
	if err != nil {
		return nil, err
	}
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli(), nil
	}
	return v, nil
}

func mapError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqliteConstraint {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
