package model

import "time"

// Channel is one playable entry of the playlist. Number is nil when the
// playlist carries no (or a non-numeric) channel number.
type Channel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number *int   `json:"number,omitempty"`
	Stream string `json:"stream"`
	Icon   string `json:"icon,omitempty"`
}

// Programme is one scheduled broadcast on a channel. Start is always
// strictly before Stop for rows held by the store.
type Programme struct {
	ID          int64     `json:"id"`
	ChannelID   string    `json:"channelId"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
	Title       string    `json:"title,omitempty"`
	SubTitle    string    `json:"subTitle,omitempty"`
	Description string    `json:"description,omitempty"`

	Season           *int `json:"season,omitempty"`
	TotalSeasons     *int `json:"totalSeasons,omitempty"`
	Episode          *int `json:"episode,omitempty"`
	EpisodesInSeason *int `json:"episodesInSeason,omitempty"`
	Part             *int `json:"part,omitempty"`
	PartsInEpisode   *int `json:"partsInEpisode,omitempty"`

	Categories []Category `json:"categories,omitempty"`
}

// Airing reports whether the programme covers instant t (start inclusive,
// stop exclusive).
func (p Programme) Airing(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.Stop)
}

// EpisodeNumber is the decoded form of an xmltv_ns episode-num. Season,
// Episode and Part are 1-based; totals are counts.
type EpisodeNumber struct {
	Season           *int
	TotalSeasons     *int
	Episode          *int
	EpisodesInSeason *int
	Part             *int
	PartsInEpisode   *int
}

// Apply copies the decoded slots onto p.
func (e EpisodeNumber) Apply(p *Programme) {
	p.Season = e.Season
	p.TotalSeasons = e.TotalSeasons
	p.Episode = e.Episode
	p.EpisodesInSeason = e.EpisodesInSeason
	p.Part = e.Part
	p.PartsInEpisode = e.PartsInEpisode
}

type Category struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// Settings locates the two feeds. ScheduleURL is optional.
type Settings struct {
	PlaylistURL string `json:"playlistUrl"`
	ScheduleURL string `json:"scheduleUrl,omitempty"`
}

func IntPtr(v int) *int {
	return &v
}
