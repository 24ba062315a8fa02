package feeds

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"livetv-guide/model"
)

var xmltvTimeRegex = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})(?:\s*([+-]\d{4}))?$`)

const isoLayout = "2006-01-02T15:04:05-0700"

// ParseXMLTVTime decodes "YYYYMMDDHHmmss ±ZZZZ". A missing offset is read
// as UTC.
func ParseXMLTVTime(s string) (time.Time, error) {
	m := xmltvTimeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, &ParseError{Field: "time", Value: s}
	}

	zone := m[7]
	if zone == "" {
		zone = "+0000"
	}

	iso := fmt.Sprintf("%s-%s-%sT%s:%s:%s%s", m[1], m[2], m[3], m[4], m[5], m[6], zone)
	t, err := time.Parse(isoLayout, iso)
	if err != nil {
		return time.Time{}, &ParseError{Field: "time", Value: s, Err: err}
	}

	return t, nil
}

// ParseEpisodeNumber decodes an xmltv_ns value "S/TS . E/TE . P/TP".
// Season, episode and part are zero-based on the wire and returned
// one-based; totals are returned as-is. Empty or non-numeric slots stay nil.
func ParseEpisodeNumber(s string) model.EpisodeNumber {
	var en model.EpisodeNumber

	sections := strings.SplitN(s, ".", 3)
	slots := [3][2]**int{
		{&en.Season, &en.TotalSeasons},
		{&en.Episode, &en.EpisodesInSeason},
		{&en.Part, &en.PartsInEpisode},
	}

	for i, section := range sections {
		index, total, _ := strings.Cut(section, "/")
		if v, ok := atoi(index); ok {
			*slots[i][0] = model.IntPtr(v + 1)
		}
		if v, ok := atoi(total); ok {
			*slots[i][1] = model.IntPtr(v)
		}
	}

	return en
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseCategories splits a "/"-separated category string. Empty names are
// dropped.
func ParseCategories(s string) []model.Category {
	var categories []model.Category
	for _, name := range strings.Split(s, "/") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		categories = append(categories, model.Category{Name: name})
	}
	return categories
}
