package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-relay/app/tasks"
)

func NewHandler(registry InstanceRegistry, store ReferenceCounter, version string) *Handler {
	return &Handler{
		registry:  registry,
		store:     store,
		version:   version,
		startedAt: time.Now(),
	}
}

func (h *Handler) GetLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetReady(c *gin.Context) {
	states := make(map[string]string)
	for _, instance := range h.registry.Instances() {
		states[instance.ID()] = instance.State().String()
	}

	status := http.StatusOK
	body := gin.H{"status": "ready", "instances": states}
	if !h.registry.Ready() {
		status = http.StatusServiceUnavailable
		body["status"] = "initializing"
	}

	c.JSON(status, body)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"instances": len(h.registry.Instances()),
	}

	if h.store != nil {
		if count, err := h.store.Count(c.Request.Context()); err == nil {
			health["reference_posts"] = count
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListInstances(c *gin.Context) {
	instances := h.registry.Instances()
	out := make([]gin.H, 0, len(instances))

	for _, instance := range instances {
		info := gin.H{
			"id":         instance.ID(),
			"state":      instance.State().String(),
			"feed_count": instance.FeedCount(),
		}
		if summary, ok := instance.LastBatch(); ok {
			info["last_batch"] = summary
		}
		out = append(out, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"instances": out,
		"total":     len(out),
	})
}

func (h *Handler) APIGetInstanceFeeds(c *gin.Context) {
	id := c.Param("id")

	instance, ok := h.registry.Instance(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
		return
	}

	c.JSON(http.StatusOK, instanceFeeds(instance))
}

func instanceFeeds(instance tasks.InstanceStatus) gin.H {
	feeds := instance.FeedStates()
	return gin.H{
		"id":    instance.ID(),
		"state": instance.State().String(),
		"feeds": feeds,
		"total": len(feeds),
	}
}
