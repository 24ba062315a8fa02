package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"livetv-guide/directory"
	"livetv-guide/model"
)

const eventBuffer = 8

type channelEvent struct {
	Channel   model.Channel    `json:"channel"`
	Programme *model.Programme `json:"programme"`
}

// Events streams channel changes as server-sent events, starting with the
// active channel.
func (a *API) Events(c *gin.Context) {
	sub := a.engine.Directory.Subscribe(eventBuffer)
	defer sub.Close()

	ctx := c.Request.Context()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if ch, ok := a.engine.Directory.Current(); ok {
		programme, err := a.engine.Lookup.Current(ctx, ch.ID, time.Now())
		if err != nil {
			a.logger.Warnf("Error looking up current programme for %s: %v", ch.ID, err)
		}
		a.sendEvent(c, channelEvent{Channel: ch, Programme: programme})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, ok := a.resolve(ctx, ev)
			if !ok {
				return
			}
			a.sendEvent(c, payload)
		}
	}
}

func (a *API) resolve(ctx context.Context, ev directory.ChannelChange) (channelEvent, bool) {
	programme, err := ev.Programme.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return channelEvent{}, false
	}
	return channelEvent{Channel: ev.Channel, Programme: programme}, true
}

func (a *API) sendEvent(c *gin.Context, payload channelEvent) {
	c.SSEvent("channel", payload)
	c.Writer.Flush()
}
