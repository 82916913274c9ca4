package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crosspost/crosspost/internal/service"
)

// maxUploadBytes bounds one media file
const maxUploadBytes = 50 << 20

type approveRequest struct {
	Platform string  `json:"platform" validate:"required"`
	Content  *string `json:"content"`
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

func (r *Router) createPost(c *gin.Context) {
	var req service.CreatePostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}

	post, err := r.posts.CreatePost(c.Request.Context(), currentUser(c), req)
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (r *Router) listPosts(c *gin.Context) {
	posts, err := r.posts.ListPosts(c.Request.Context(), currentUser(c))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (r *Router) approvePost(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}
	if err := r.validate.Struct(req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "platform is required"))
		return
	}

	post, err := r.posts.ApprovePost(c.Request.Context(), currentUser(c), c.Param("id"), req.Platform, req.Content)
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) publishPost(c *gin.Context) {
	out, err := r.posts.PublishPost(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": out.Results,
		"post":    out.Post,
	})
}

func (r *Router) schedulePost(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "scheduledAt must be an RFC 3339 timestamp"))
		return
	}
	if err := r.validate.Struct(req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "scheduledAt is required"))
		return
	}

	post, err := r.posts.SchedulePost(c.Request.Context(), currentUser(c), c.Param("id"), req.ScheduledAt)
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) cancelSchedule(c *gin.Context) {
	post, err := r.posts.CancelSchedule(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) deletePost(c *gin.Context) {
	if err := r.posts.DeletePost(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

func (r *Router) uploadMedia(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "Expected a multipart form"))
		return
	}

	headers := form.File["media"]
	if len(headers) > service.MaxMediaFiles {
		r.sendError(c, NewError(http.StatusBadRequest, "At most 4 media files are allowed"))
		return
	}

	files := make([]service.MediaFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxUploadBytes {
			r.sendError(c, NewError(http.StatusBadRequest, fh.Filename+" is too large"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			r.sendError(c, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			r.sendError(c, err)
			return
		}
		files = append(files, service.MediaFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	out, err := r.posts.UploadMedia(c.Request.Context(), files)
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
