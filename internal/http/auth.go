package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sujalbistaa/feedsync/internal/db"
	"github.com/sujalbistaa/feedsync/internal/models"
)

type RegisterInput struct {
	Username string  `json:"username" binding:"required,min=3,max=50"`
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=6,max=72"`
	FullName *string `json:"full_name" binding:"omitempty,max=100"`
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ProfileInput struct {
	FullName  *string `json:"full_name" binding:"omitempty,max=100"`
	Bio       *string `json:"bio" binding:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=2048"`
}

type PreferencesInput struct {
	FavoriteTags []string `json:"favorite_tags" binding:"max=50,dive,max=50"`
	Interests    []string `json:"interests" binding:"max=50,dive,max=50"`
}

// Register creates an account. Usernames and emails are unique.
func (e *Env) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	tx := e.DB.WithContext(c.Request.Context())

	var n int64
	if err := tx.Model(&db.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		e.internalError(c, err, "Failed to register")
		return
	}
	if n > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username already registered"})
		return
	}
	if err := tx.Model(&db.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		e.internalError(c, err, "Failed to register")
		return
	}
	if n > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), e.hashCost())
	if err != nil {
		e.internalError(c, err, "Failed to register")
		return
	}
	user := db.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     trimOptional(input.FullName),
	}
	if err := tx.Create(&user).Error; err != nil {
		e.internalError(c, err, "Failed to register")
		return
	}
	e.Log.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	c.JSON(http.StatusCreated, user.Profile())
}

// Login checks the password and issues an opaque bearer token.
func (e *Env) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	tx := e.DB.WithContext(c.Request.Context())

	var user db.User
	err := tx.First(&user, "username = ?", strings.TrimSpace(input.Username)).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		e.internalError(c, err, "Failed to log in")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
		return
	}

	tok := db.AuthToken{Token: uuid.NewString(), UserID: user.ID}
	if err := tx.Create(&tok).Error; err != nil {
		e.internalError(c, err, "Failed to log in")
		return
	}
	c.JSON(http.StatusOK, models.Token{AccessToken: tok.Token, TokenType: "bearer"})
}

func (e *Env) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c).Profile())
}

// UpdateMe changes the optional profile fields that are present.
func (e *Env) UpdateMe(c *gin.Context) {
	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user := currentUser(c)
	if input.FullName != nil {
		user.FullName = trimOptional(input.FullName)
	}
	if input.Bio != nil {
		user.Bio = trimOptional(input.Bio)
	}
	if input.AvatarURL != nil {
		user.AvatarURL = trimOptional(input.AvatarURL)
	}
	if err := e.DB.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		e.internalError(c, err, "Failed to update profile")
		return
	}
	c.JSON(http.StatusOK, user.Profile())
}

func (e *Env) GetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c).Preferences())
}

// UpdatePreferences replaces both lists. Missing lists become empty.
func (e *Env) UpdatePreferences(c *gin.Context) {
	var input PreferencesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user := currentUser(c)
	user.FavoriteTags = cleanList(input.FavoriteTags)
	user.Interests = cleanList(input.Interests)
	if err := e.DB.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		e.internalError(c, err, "Failed to update preferences")
		return
	}
	c.JSON(http.StatusOK, user.Profile())
}

func (e *Env) hashCost() int {
	if e.HashCost != 0 {
		return e.HashCost
	}
	return bcrypt.DefaultCost
}
