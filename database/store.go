package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livetv-guide/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConstraint   = errors.New("constraint violation")
	ErrUnknownIndex = errors.New("unknown index")
)

type Collection string

const (
	Channels   Collection = "channel"
	Programmes Collection = "programme"
	Categories Collection = "category"
)

// AllCollections lists the cached collections in the order they are
// cleared.
var AllCollections = []Collection{Programmes, Categories, Channels}

type ChannelIndex string

const (
	ChannelByID     ChannelIndex = "id"
	ChannelByName   ChannelIndex = "name"
	ChannelByStream ChannelIndex = "stream"
	ChannelByNumber ChannelIndex = "number"
	ChannelByIcon   ChannelIndex = "icon"
)

type ProgrammeIndex string

const (
	ProgrammeByID               ProgrammeIndex = "id"
	ProgrammeByChannel          ProgrammeIndex = "channelId"
	ProgrammeByStart            ProgrammeIndex = "start"
	ProgrammeByStop             ProgrammeIndex = "stop"
	ProgrammeByTitle            ProgrammeIndex = "title"
	ProgrammeBySeason           ProgrammeIndex = "season"
	ProgrammeByTotalSeasons     ProgrammeIndex = "totalSeasons"
	ProgrammeByEpisode          ProgrammeIndex = "episode"
	ProgrammeByEpisodesInSeason ProgrammeIndex = "episodesInSeason"
	ProgrammeByPart             ProgrammeIndex = "part"
	ProgrammeByPartsInEpisode   ProgrammeIndex = "partsInEpisode"
)

// Store is the local cache of the two feeds. Reads see committed data
// only; writes go through Update so that a batch commits or rolls back as
// a whole.
type Store interface {
	Count(ctx context.Context, c Collection) (int, error)

	GetChannel(ctx context.Context, id string) (model.Channel, error)
	FindChannels(ctx context.Context, index ChannelIndex, value any) ([]model.Channel, error)
	// ListChannels returns every channel ordered by index. Channels without
	// a value for the index come last, ordered by id.
	ListChannels(ctx context.Context, index ChannelIndex) ([]model.Channel, error)

	GetProgramme(ctx context.Context, id int64) (model.Programme, error)
	FindProgrammes(ctx context.Context, index ProgrammeIndex, value any) ([]model.Programme, error)
	ListProgrammes(ctx context.Context, index ProgrammeIndex) ([]model.Programme, error)

	ListCategories(ctx context.Context) ([]model.Category, error)

	// Update runs fn inside one write transaction. The transaction commits
	// only if fn returns nil.
	Update(ctx context.Context, fn func(tx Tx) error) error
	ClearAll(ctx context.Context) error

	Setting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSettings(ctx context.Context, keys ...string) error

	SchemaVersion() int
	Close() error
}

// Tx is the write side of a batch.
type Tx interface {
	// AddChannel inserts a new channel and fails with ErrConstraint when
	// the id already exists.
	AddChannel(ch model.Channel) error
	// PutChannel inserts or replaces a channel.
	PutChannel(ch model.Channel) error
	// AddProgramme inserts p under a fresh id and returns it. Categories
	// are resolved by name and created when unknown.
	AddProgramme(p model.Programme) (int64, error)
	// AddCategory returns the category with that name, creating it when
	// necessary.
	AddCategory(name string) (model.Category, error)
	Channels() ([]model.Channel, error)
	Clear(collections ...Collection) error
}

type indexKind int

const (
	kindString indexKind = iota
	kindInt
	kindTime
)

type indexSpec struct {
	column string
	field  string
	kind   indexKind
}

var channelIndexes = map[ChannelIndex]indexSpec{
	ChannelByID:     {column: "id", field: "ID", kind: kindString},
	ChannelByName:   {column: "name", field: "Name", kind: kindString},
	ChannelByStream: {column: "stream", field: "Stream", kind: kindString},
	ChannelByNumber: {column: "number", field: "Number", kind: kindInt},
	ChannelByIcon:   {column: "icon", field: "Icon", kind: kindString},
}

var programmeIndexes = map[ProgrammeIndex]indexSpec{
	ProgrammeByID:               {column: "id", field: "ID", kind: kindInt},
	ProgrammeByChannel:          {column: "channel_id", field: "ChannelID", kind: kindString},
	ProgrammeByStart:            {column: "start", field: "Start", kind: kindTime},
	ProgrammeByStop:             {column: "stop", field: "Stop", kind: kindTime},
	ProgrammeByTitle:            {column: "title", field: "Title", kind: kindString},
	ProgrammeBySeason:           {column: "season", field: "Season", kind: kindInt},
	ProgrammeByTotalSeasons:     {column: "total_seasons", field: "TotalSeasons", kind: kindInt},
	ProgrammeByEpisode:          {column: "episode", field: "Episode", kind: kindInt},
	ProgrammeByEpisodesInSeason: {column: "episodes_in_season", field: "EpisodesInSeason", kind: kindInt},
	ProgrammeByPart:             {column: "part", field: "Part", kind: kindInt},
	ProgrammeByPartsInEpisode:   {column: "parts_in_episode", field: "PartsInEpisode", kind: kindInt},
}

func channelIndex(index ChannelIndex) (indexSpec, error) {
	spec, ok := channelIndexes[index]
	if !ok {
		return indexSpec{}, fmt.Errorf("%w: channel.%s", ErrUnknownIndex, index)
	}
	return spec, nil
}

func programmeIndex(index ProgrammeIndex) (indexSpec, error) {
	spec, ok := programmeIndexes[index]
	if !ok {
		return indexSpec{}, fmt.Errorf("%w: programme.%s", ErrUnknownIndex, index)
	}
	return spec, nil
}

// normalize converts a lookup value to the canonical Go type of the index:
// string, int64 or time.Time.
func (s indexSpec) normalize(value any) (any, error) {
	switch s.kind {
	case kindString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case kindInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case *int:
			if v != nil {
				return int64(*v), nil
			}
		}
	case kindTime:
		if v, ok := value.(time.Time); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("invalid value %v (%T) for index %s", value, value, s.column)
}
