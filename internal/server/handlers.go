package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/trendbrief/internal/briefing"
	"github.com/ppiankov/trendbrief/internal/model"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.version})
}

func (s *Server) bindRequest(c *gin.Context) (briefing.Request, bool) {
	var req briefing.Request
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return req, false
	}
	return req, true
}

func (s *Server) handleBriefing(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if !req.Streaming() {
		report, err := s.briefer.Run(ctx, req, nil)
		if err != nil {
			c.JSON(HTTPStatus(err), gin.H{"error": err.Error(), "report": report})
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}

	sse, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	report, err := s.briefer.Run(ctx, req, func(chunk model.StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return sse.WriteEvent("chunk", chunk)
	})
	if err != nil {
		status := HTTPStatus(err)
		if status == StatusClientClosedRequest {
			return
		}
		if !sse.Started() {
			c.JSON(status, gin.H{"error": err.Error(), "report": report})
			return
		}
		sse.WriteError(status, err.Error())
		return
	}
	_ = sse.WriteEvent("report", report)
}

func (s *Server) handlePreview(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	preview, err := s.briefer.Preview(c.Request.Context(), req)
	if err != nil {
		c.JSON(HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}
