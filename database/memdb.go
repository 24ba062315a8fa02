package database

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"

	"livetv-guide/model"
)

const (
	memdbSchemaVersion = 1
	settingTable       = "setting"
)

type setting struct {
	Key   string
	Value string
}

// MemDB is an in-memory Store. Read transactions are snapshots, so readers
// never observe a half-applied batch.
type MemDB struct {
	db *memdb.MemDB

	lastProgrammeID atomic.Int64
	lastCategoryID  atomic.Int64
}

func memdbSchema() *memdb.DBSchema {
	channelSchema := &memdb.TableSchema{
		Name:    string(Channels),
		Indexes: map[string]*memdb.IndexSchema{},
	}
	for name, spec := range channelIndexes {
		channelSchema.Indexes[string(name)] = &memdb.IndexSchema{
			Name:         string(name),
			Unique:       name == ChannelByID,
			AllowMissing: name != ChannelByID,
			Indexer:      &fieldIndex{Field: spec.field, Kind: spec.kind},
		}
	}

	programmeSchema := &memdb.TableSchema{
		Name:    string(Programmes),
		Indexes: map[string]*memdb.IndexSchema{},
	}
	for name, spec := range programmeIndexes {
		programmeSchema.Indexes[string(name)] = &memdb.IndexSchema{
			Name:         string(name),
			Unique:       name == ProgrammeByID,
			AllowMissing: name != ProgrammeByID,
			Indexer:      &fieldIndex{Field: spec.field, Kind: spec.kind},
		}
	}

	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			string(Channels):   channelSchema,
			string(Programmes): programmeSchema,
			string(Categories): {
				Name: string(Categories),
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &fieldIndex{Field: "ID", Kind: kindInt},
					},
					"name": {
						Name:    "name",
						Unique:  true,
						Indexer: &fieldIndex{Field: "Name", Kind: kindString},
					},
				},
			},
			settingTable: {
				Name: settingTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}
}

// NewMemDB creates an empty in-memory store.
func NewMemDB() (*MemDB, error) {
	db, err := memdb.NewMemDB(memdbSchema())
	if err != nil {
		return nil, err
	}

	return &MemDB{db: db}, nil
}

func (m *MemDB) SchemaVersion() int {
	return memdbSchemaVersion
}

func (m *MemDB) Close() error {
	return nil
}

func (m *MemDB) Count(ctx context.Context, c Collection) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(string(c), "id")
	if err != nil {
		return 0, err
	}

	count := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		count++
	}
	return count, nil
}

func (m *MemDB) GetChannel(ctx context.Context, id string) (model.Channel, error) {
	if err := ctx.Err(); err != nil {
		return model.Channel{}, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(string(Channels), string(ChannelByID), id)
	if err != nil {
		return model.Channel{}, err
	}
	if raw == nil {
		return model.Channel{}, ErrNotFound
	}
	return *raw.(*model.Channel), nil
}

func (m *MemDB) FindChannels(ctx context.Context, index ChannelIndex, value any) ([]model.Channel, error) {
	if _, err := channelIndex(index); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(string(Channels), string(index), value)
	if err != nil {
		return nil, err
	}
	return collect[model.Channel](it), nil
}

func (m *MemDB) ListChannels(ctx context.Context, index ChannelIndex) ([]model.Channel, error) {
	if _, err := channelIndex(index); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	return listOrdered(txn, string(Channels), string(index), func(ch *model.Channel) string { return ch.ID })
}

func (m *MemDB) GetProgramme(ctx context.Context, id int64) (model.Programme, error) {
	if err := ctx.Err(); err != nil {
		return model.Programme{}, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(string(Programmes), string(ProgrammeByID), id)
	if err != nil {
		return model.Programme{}, err
	}
	if raw == nil {
		return model.Programme{}, ErrNotFound
	}
	return copyProgramme(raw.(*model.Programme)), nil
}

func (m *MemDB) FindProgrammes(ctx context.Context, index ProgrammeIndex, value any) ([]model.Programme, error) {
	if _, err := programmeIndex(index); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(string(Programmes), string(index), value)
	if err != nil {
		return nil, err
	}

	var out []model.Programme
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, copyProgramme(obj.(*model.Programme)))
	}
	return out, nil
}

func (m *MemDB) ListProgrammes(ctx context.Context, index ProgrammeIndex) ([]model.Programme, error) {
	if _, err := programmeIndex(index); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	list, err := listOrdered(txn, string(Programmes), string(index), func(p *model.Programme) int64 { return p.ID })
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = copyProgramme(&list[i])
	}
	return list, nil
}

func (m *MemDB) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(string(Categories), "id")
	if err != nil {
		return nil, err
	}
	return collect[model.Category](it), nil
}

func (m *MemDB) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	if err := fn(&memTx{txn: txn, db: m}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

func (m *MemDB) ClearAll(ctx context.Context) error {
	return m.Update(ctx, func(tx Tx) error {
		return tx.Clear(AllCollections...)
	})
}

func (m *MemDB) Setting(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(settingTable, "id", key)
	if err != nil {
		return "", false, err
	}
	if raw == nil {
		return "", false, nil
	}
	return raw.(*setting).Value, true, nil
}

func (m *MemDB) PutSetting(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(settingTable, &setting{Key: key, Value: value}); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

func (m *MemDB) DeleteSettings(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	for _, key := range keys {
		if _, err := txn.DeleteAll(settingTable, "id", key); err != nil {
			return err
		}
	}

	txn.Commit()
	return nil
}

type memTx struct {
	txn *memdb.Txn
	db  *MemDB
}

func (t *memTx) AddChannel(ch model.Channel) error {
	raw, err := t.txn.First(string(Channels), string(ChannelByID), ch.ID)
	if err != nil {
		return err
	}
	if raw != nil {
		return fmt.Errorf("%w: channel %q already exists", ErrConstraint, ch.ID)
	}
	return t.PutChannel(ch)
}

func (t *memTx) PutChannel(ch model.Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("%w: channel id is empty", ErrConstraint)
	}
	if ch.Number != nil {
		ch.Number = model.IntPtr(*ch.Number)
	}
	return t.txn.Insert(string(Channels), &ch)
}

func (t *memTx) AddProgramme(p model.Programme) (int64, error) {
	if !p.Start.Before(p.Stop) {
		return 0, fmt.Errorf("%w: programme stop must be after start", ErrConstraint)
	}

	categories := make([]model.Category, 0, len(p.Categories))
	for _, c := range p.Categories {
		category, err := t.AddCategory(c.Name)
		if err != nil {
			return 0, err
		}
		categories = append(categories, category)
	}

	p = copyProgramme(&p)
	p.ID = t.db.lastProgrammeID.Add(1)
	p.Categories = categories
	if len(categories) == 0 {
		p.Categories = nil
	}

	if err := t.txn.Insert(string(Programmes), &p); err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (t *memTx) AddCategory(name string) (model.Category, error) {
	raw, err := t.txn.First(string(Categories), "name", name)
	if err != nil {
		return model.Category{}, err
	}
	if raw != nil {
		return *raw.(*model.Category), nil
	}

	category := &model.Category{ID: t.db.lastCategoryID.Add(1), Name: name}
	if err := t.txn.Insert(string(Categories), category); err != nil {
		return model.Category{}, err
	}
	return *category, nil
}

func (t *memTx) Channels() ([]model.Channel, error) {
	it, err := t.txn.Get(string(Channels), string(ChannelByID))
	if err != nil {
		return nil, err
	}
	return collect[model.Channel](it), nil
}

func (t *memTx) Clear(collections ...Collection) error {
	for _, c := range collections {
		if _, err := t.txn.DeleteAll(string(c), "id"); err != nil {
			return fmt.Errorf("error clearing %s: %w", c, err)
		}
	}
	return nil
}

func collect[T any](it memdb.ResultIterator) []T {
	var out []T
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, *obj.(*T))
	}
	return out
}

// listOrdered walks index in key order, then appends the rows missing from
// it in primary key order.
func listOrdered[T any, K comparable](txn *memdb.Txn, table, index string, key func(*T) K) ([]T, error) {
	it, err := txn.Get(table, index)
	if err != nil {
		return nil, err
	}

	var out []T
	seen := make(map[K]struct{})
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*T)
		seen[key(row)] = struct{}{}
		out = append(out, *row)
	}

	if index == "id" {
		return out, nil
	}

	it, err = txn.Get(table, "id")
	if err != nil {
		return nil, err
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*T)
		if _, ok := seen[key(row)]; !ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func copyProgramme(p *model.Programme) model.Programme {
	out := *p
	if p.Categories != nil {
		out.Categories = append([]model.Category(nil), p.Categories...)
	}
	return out
}
