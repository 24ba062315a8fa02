package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"livetv-guide/model"
	"livetv-guide/updater"
)

// settingsPage is where the user corrects the feed locations. Field level
// messages travel as query parameters.
const settingsPage = "/settings"

type settingsForm struct {
	PlaylistURL string `form:"playlistUrl" json:"playlistUrl"`
	ScheduleURL string `form:"scheduleUrl" json:"scheduleUrl"`
}

func (a *API) GetSettings(c *gin.Context) {
	settings, err := a.engine.State.Settings(c.Request.Context())
	if err != nil {
		a.logger.Errorf("Error reading settings: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// SaveSettings switches to the submitted feeds. On success the client is
// sent back to the guide; configuration problems send it to the settings
// page with a message per field.
func (a *API) SaveSettings(c *gin.Context) {
	var form settingsForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := a.engine.Reconfigure(c.Request.Context(), model.Settings{
		PlaylistURL: form.PlaylistURL,
		ScheduleURL: form.ScheduleURL,
	})
	if err != nil {
		a.respondError(c, err)
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// Sync runs an ingestion pass now, joining one already in progress.
func (a *API) Sync(c *gin.Context) {
	if err := a.engine.Updater.Sync(c.Request.Context()); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) respondError(c *gin.Context, err error) {
	if fields := updater.FieldMessages(err); fields != nil {
		query := url.Values{}
		for field, message := range fields {
			query.Set(field, message)
		}
		c.Redirect(http.StatusSeeOther, settingsPage+"?"+query.Encode())
		return
	}

	a.logger.Errorf("Error updating cache: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
