package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errForbidden       = errors.New("forbidden")
	errEmptyContent    = errors.New("content is empty")
	errCommentNotFound = errors.New("comment not found")
)

func (e *Env) internalError(c *gin.Context, err error, msg string) {
	_ = c.Error(err)
	e.Log.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (e *Env) postError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, errPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
	case errors.Is(err, errForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only modify your own posts"})
	case errors.Is(err, errEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: content is empty"})
	default:
		e.internalError(c, err, "Failed to process post")
	}
}

func (e *Env) commentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, errPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
	case errors.Is(err, errForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only modify your own comments"})
	case errors.Is(err, errEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: content is empty"})
	default:
		e.internalError(c, err, "Failed to process comment")
	}
}
