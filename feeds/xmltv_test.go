package feeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-guide/model"
)

func TestParseXMLTVTime(t *testing.T) {
	t.Run("with offset", func(t *testing.T) {
		got, err := ParseXMLTVTime("20240101120000 +0100")
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)))
	})

	t.Run("negative offset", func(t *testing.T) {
		got, err := ParseXMLTVTime("20240101120000 -0530")
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC)))
	})

	t.Run("missing offset is UTC", func(t *testing.T) {
		got, err := ParseXMLTVTime("20240101120000")
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
	})

	for _, bad := range []string{"", "2024-01-01", "20241301120000 +0000", "20240101 +0000", "20240101120000 +01"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := ParseXMLTVTime(bad)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestParseEpisodeNumber(t *testing.T) {
	tests := []struct {
		in   string
		want model.EpisodeNumber
	}{
		{
			in: "0.5.",
			want: model.EpisodeNumber{
				Season:  model.IntPtr(1),
				Episode: model.IntPtr(6),
			},
		},
		{
			in: "2/5 . 9/12 . 0/2",
			want: model.EpisodeNumber{
				Season:           model.IntPtr(3),
				TotalSeasons:     model.IntPtr(5),
				Episode:          model.IntPtr(10),
				EpisodesInSeason: model.IntPtr(12),
				Part:             model.IntPtr(1),
				PartsInEpisode:   model.IntPtr(2),
			},
		},
		{
			in:   ".3.",
			want: model.EpisodeNumber{Episode: model.IntPtr(4)},
		},
		{
			in:   "..",
			want: model.EpisodeNumber{},
		},
		{
			in:   "x.y.z",
			want: model.EpisodeNumber{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEpisodeNumber(tt.in))
		})
	}
}

func TestParseCategories(t *testing.T) {
	assert.Equal(t, []model.Category{{Name: "Drama"}, {Name: "Crime"}}, ParseCategories("Drama / Crime"))
	assert.Equal(t, []model.Category{{Name: "News"}}, ParseCategories("News"))
	assert.Equal(t, []model.Category{{Name: "A"}}, ParseCategories(" / A /"))
	assert.Nil(t, ParseCategories(""))
}
