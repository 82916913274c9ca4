package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crosspost/crosspost/internal/ai"
)

func (r *Router) generatePost(c *gin.Context) {
	var req ai.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}
	if err := r.validate.Struct(req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "Missing required fields: purpose, targetAudience, tone, platforms"))
		return
	}

	content, err := r.generator.Generate(c.Request.Context(), ai.PostPrompt(req))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"content": content,
		"metadata": gin.H{
			"brandName":      req.BrandName,
			"purpose":        req.Purpose,
			"targetAudience": req.TargetAudience,
			"tone":           req.Tone,
			"platform":       strings.Join(req.Platforms, ", "),
			"colors":         req.Colors,
		},
	})
}
