package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"livetv-guide/guide"
	"livetv-guide/model"
)

func (a *API) ListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, a.engine.Directory.Channels())
}

func (a *API) CurrentChannel(c *gin.Context) {
	ch, ok := a.engine.Directory.Current()
	a.respondChannel(c, ch, ok)
}

func (a *API) ChannelUp(c *gin.Context) {
	ch, ok := a.engine.Directory.ChannelUp()
	a.respondChannel(c, ch, ok)
}

func (a *API) ChannelDown(c *gin.Context) {
	ch, ok := a.engine.Directory.ChannelDown()
	a.respondChannel(c, ch, ok)
}

// SelectNumber handles a typed channel number. A number that matches no
// channel leaves the active channel as it was.
func (a *API) SelectNumber(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel number"})
		return
	}

	ch, found := a.engine.Directory.SelectByNumber(number)
	a.respondChannel(c, ch, found)
}

func (a *API) SelectID(c *gin.Context) {
	ch, found := a.engine.Directory.SelectID(c.Param("id"))
	a.respondChannel(c, ch, found)
}

// TypeDigit buffers one digit of a channel number. The number is tuned
// once no further digit arrives within the entry timeout.
func (a *API) TypeDigit(c *gin.Context) {
	digit := c.Param("digit")
	if len(digit) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel digit"})
		return
	}

	pending, err := a.engine.NumberEntry.Type(rune(digit[0]))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"pending": pending})
}

func (a *API) respondChannel(c *gin.Context, ch model.Channel, ok bool) {
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	c.JSON(http.StatusOK, ch)
}

// NowPlaying answers with the programme on air, or 204 when nothing is.
func (a *API) NowPlaying(c *gin.Context) {
	programme, err := a.engine.Lookup.Current(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		a.logger.Errorf("Error looking up current programme: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if programme == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, programme)
}

func (a *API) Upcoming(c *gin.Context) {
	horizon := guide.DefaultHorizon
	if raw := c.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}
		horizon = time.Duration(hours) * time.Hour
	}

	listings, err := a.engine.Lookup.Upcoming(c.Request.Context(), c.Param("id"), time.Now(), horizon)
	if err != nil {
		a.logger.Errorf("Error looking up upcoming programmes: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if listings == nil {
		listings = []guide.Listing{}
	}
	c.JSON(http.StatusOK, listings)
}

// Slots lists the half-hour grid columns covering the next few hours.
func (a *API) Slots(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "3"))
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
		return
	}

	now := time.Now()
	c.JSON(http.StatusOK, guide.TimeSlots(now, now.Add(time.Duration(hours)*time.Hour)))
}
