package handlers

import (
	"github.com/gin-gonic/gin"

	"livetv-guide/logger"
	"livetv-guide/tuner"
)

// API serves the engine over HTTP.
type API struct {
	engine *tuner.Engine
	logger logger.Logger
}

func NewAPI(engine *tuner.Engine, log logger.Logger) *API {
	return &API{engine: engine, logger: log}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(api *API) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(api.logger), gin.Recovery())

	g := r.Group("/api")

	g.GET("/channels", api.ListChannels)
	g.GET("/channel", api.CurrentChannel)
	g.POST("/channel/up", api.ChannelUp)
	g.POST("/channel/down", api.ChannelDown)
	g.POST("/channel/number/:number", api.SelectNumber)
	g.POST("/channel/id/:id", api.SelectID)
	g.POST("/channel/digit/:digit", api.TypeDigit)

	g.GET("/channels/:id/now", api.NowPlaying)
	g.GET("/channels/:id/upcoming", api.Upcoming)
	g.GET("/guide/slots", api.Slots)

	g.GET("/events", api.Events)

	g.GET("/settings", api.GetSettings)
	g.POST("/settings", api.SaveSettings)
	g.POST("/sync", api.Sync)

	return r
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debugf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}
