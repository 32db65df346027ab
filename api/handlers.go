package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/session"
)

// StartThreadRequest starts a new thread.
type StartThreadRequest struct {
	Message string `json:"message" binding:"required"`
}

// DecisionRequest approves or rejects the gate a thread is waiting at.
type DecisionRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// ListThreadsRequest filters GET /v1/threads.
type ListThreadsRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"omitempty,min=0"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

func (a *API) chat(c *gin.Context) {
	var req session.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := a.ctrl.Chat(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) startThread(c *gin.Context) {
	var req StartThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := a.ctrl.Start(c.Request.Context(), req.Message)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, st)
}

func (a *API) getThread(c *gin.Context) {
	st, err := a.ctrl.Poll(c.Request.Context(), c.Param("threadId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := a.ctrl.Decide(c.Request.Context(), c.Param("threadId"), *req.Approved)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) listThreads(c *gin.Context) {
	var req ListThreadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threads, err := a.ctrl.List(c.Request.Context(), checkpoint.ListOpts{
		Status: checkpoint.Status(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (a *API) listNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": a.ctrl.Nodes()})
}

func (a *API) healthCheck(c *gin.Context) {
	if a.health != nil {
		if err := a.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
