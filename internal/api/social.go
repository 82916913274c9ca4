package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/service"
)

type subredditRequest struct {
	Subreddit string `json:"subreddit" validate:"required"`
}

func (r *Router) listAccounts(c *gin.Context) {
	accounts, err := r.accounts.ListAccounts(c.Request.Context(), currentUser(c))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (r *Router) toggleAccount(c *gin.Context) {
	acc, err := r.accounts.ToggleAccount(c.Request.Context(), currentUser(c), c.Param("platform"))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (r *Router) setSubreddit(c *gin.Context) {
	var req subredditRequest
	if err := c.ShouldBindJSON(&req); err != nil || r.validate.Struct(req) != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "subreddit is required"))
		return
	}
	acc, err := r.accounts.SetSubreddit(c.Request.Context(), currentUser(c), req.Subreddit)
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (r *Router) disconnectAccount(c *gin.Context) {
	if err := r.accounts.DisconnectAccount(c.Request.Context(), currentUser(c), c.Param("platform")); err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account disconnected"})
}

func (r *Router) reach(c *gin.Context) {
	report, err := r.accounts.Reach(c.Request.Context(), currentUser(c))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (r *Router) refreshAccounts(c *gin.Context) {
	results, err := r.accounts.RefreshOnLogin(c.Request.Context(), currentUser(c))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (r *Router) redditAuthURL(c *gin.Context) {
	authURL, err := r.accounts.RedditAuthURL(currentUser(c))
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": authURL})
}

// redditCallback finishes the authorization and sends the browser back to
// the accounts page with the outcome in the query string
func (r *Router) redditCallback(c *gin.Context) {
	if c.Query("error") != "" {
		r.redirectAccounts(c, "error", "reddit_auth_denied")
		return
	}

	_, err := r.accounts.CompleteReddit(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		r.logger.Warn("Reddit connection failed", zap.Error(err))
		reason := "reddit_connection_failed"
		if asAPIError(err).Code == http.StatusForbidden {
			reason = "invalid_state"
		}
		r.redirectAccounts(c, "error", reason)
		return
	}
	r.redirectAccounts(c, "connected", "reddit")
}

func (r *Router) redirectAccounts(c *gin.Context, key, value string) {
	c.Redirect(http.StatusFound, r.frontend+"/accounts?"+url.Values{key: {value}}.Encode())
}

func (r *Router) connectTelegram(c *gin.Context) {
	var req service.TelegramInput
	if err := c.ShouldBindJSON(&req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}
	acc, err := r.accounts.ConnectTelegram(c.Request.Context(), currentUser(c), req)
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (r *Router) connectTwitter(c *gin.Context) {
	var req service.TwitterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		r.sendError(c, NewError(http.StatusBadRequest, "Invalid request body"))
		return
	}
	acc, err := r.accounts.ConnectTwitter(c.Request.Context(), currentUser(c), req)
	if err != nil {
		r.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}
