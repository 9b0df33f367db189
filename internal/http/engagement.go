package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/feedsync/internal/db"
	"github.com/sujalbistaa/feedsync/internal/models"
)

type CommentInput struct {
	Content string `json:"content" binding:"required,max=1000"`
}

// ToggleLike likes the post if the viewer has not, and unlikes it if they
// have. The response carries the stored count after the change.
func (e *Env) ToggleLike(c *gin.Context) {
	user := currentUser(c)
	postID := c.Param("id")
	var res models.LikeResult

	err := e.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if _, err := e.findVisiblePost(tx, postID, user); err != nil {
			return err
		}

		var existing []db.Like
		if err := tx.Where("post_id = ? AND user_id = ?", postID, user.ID).Limit(1).Find(&existing).Error; err != nil {
			return err
		}

		q := tx.Model(&db.Post{}).Where("id = ?", postID)
		if len(existing) > 0 {
			if err := tx.Delete(&existing[0]).Error; err != nil {
				return err
			}
			if err := q.Update("likes_count", gorm.Expr("CASE WHEN likes_count > 0 THEN likes_count - 1 ELSE 0 END")).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Create(&db.Like{PostID: postID, UserID: user.ID}).Error; err != nil {
				return err
			}
			if err := q.Update("likes_count", gorm.Expr("likes_count + ?", 1)).Error; err != nil {
				return err
			}
			res.IsLiked = true
		}

		var post db.Post
		if err := tx.Select("likes_count").First(&post, "id = ?", postID).Error; err != nil {
			return err
		}
		res.PostID = postID
		res.LikesCount = post.LikesCount
		return nil
	})
	if err != nil {
		e.postError(c, err)
		return
	}

	action := "unlike"
	if res.IsLiked {
		action = "like"
	}
	if e.Metrics != nil {
		e.Metrics.LikesToggled.WithLabelValues(action).Inc()
	}
	e.publish(models.EventLike, gin.H{"post_id": res.PostID, "likes_count": res.LikesCount})
	c.JSON(http.StatusOK, res)
}

// LikeStatus reports the viewer's like without changing it.
func (e *Env) LikeStatus(c *gin.Context) {
	user := currentUser(c)
	post, err := e.findVisiblePost(e.DB.WithContext(c.Request.Context()), c.Param("id"), user)
	if err != nil {
		e.postError(c, err)
		return
	}
	liked, err := e.likedSet(c, user, []db.Post{post})
	if err != nil {
		e.internalError(c, err, "Failed to fetch like status")
		return
	}
	c.JSON(http.StatusOK, models.LikeResult{PostID: post.ID, LikesCount: post.LikesCount, IsLiked: liked[post.ID]})
}

// ListComments returns a post's comments, newest first.
func (e *Env) ListComments(c *gin.Context) {
	tx := e.DB.WithContext(c.Request.Context())
	post, err := e.findVisiblePost(tx, c.Param("id"), currentUser(c))
	if err != nil {
		e.commentError(c, err)
		return
	}

	var rows []db.Comment
	if err := tx.Where("post_id = ?", post.ID).Order("created_at desc, id desc").Find(&rows).Error; err != nil {
		e.internalError(c, err, "Failed to fetch comments")
		return
	}
	out := make([]models.Comment, len(rows))
	for i, r := range rows {
		out[i] = r.Model()
	}
	c.JSON(http.StatusOK, models.CommentList{Comments: out, Total: len(out)})
}

func (e *Env) CreateComment(c *gin.Context) {
	var input CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user := currentUser(c)
	postID := c.Param("id")

	comment := db.Comment{
		ID:       uuid.NewString(),
		PostID:   postID,
		UserID:   user.ID,
		Username: user.Username,
		Content:  strings.TrimSpace(input.Content),
	}
	err := e.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if comment.Content == "" {
			return errEmptyContent
		}
		if _, err := e.findVisiblePost(tx, postID, user); err != nil {
			return err
		}
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&db.Post{}).Where("id = ?", postID).
			Update("comments_count", gorm.Expr("comments_count + ?", 1)).Error
	})
	if err != nil {
		e.commentError(c, err)
		return
	}

	m := comment.Model()
	e.publish(models.EventComment, gin.H{"post_id": postID, "comment": m})
	c.JSON(http.StatusCreated, m)
}

func (e *Env) UpdateComment(c *gin.Context) {
	var input CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user := currentUser(c)

	var comment db.Comment
	err := e.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		content := strings.TrimSpace(input.Content)
		if content == "" {
			return errEmptyContent
		}
		if err := findComment(tx, c.Param("id"), &comment); err != nil {
			return err
		}
		if comment.UserID != user.ID {
			return errForbidden
		}
		comment.Content = content
		return tx.Save(&comment).Error
	})
	if err != nil {
		e.commentError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment.Model())
}

// DeleteComment removes the viewer's own comment and decrements the post's
// counter, never below zero.
func (e *Env) DeleteComment(c *gin.Context) {
	user := currentUser(c)

	err := e.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var comment db.Comment
		if err := findComment(tx, c.Param("id"), &comment); err != nil {
			return err
		}
		if comment.UserID != user.ID {
			return errForbidden
		}
		if err := tx.Delete(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&db.Post{}).Where("id = ?", comment.PostID).
			Update("comments_count", gorm.Expr("CASE WHEN comments_count > 0 THEN comments_count - 1 ELSE 0 END")).Error
	})
	if err != nil {
		e.commentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func findComment(tx *gorm.DB, id string, out *db.Comment) error {
	err := tx.First(out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errCommentNotFound
	}
	return err
}
