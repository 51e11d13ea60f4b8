package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"brewnet-server/internal/config"
	"brewnet-server/internal/models"
	"brewnet-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const sniffLen = 512

type UserHandler struct {
	profiles  *services.ProfileService
	discovery *services.DiscoveryService
	cfg       *config.Config
	log       logrus.FieldLogger
}

type BasicsRequest struct {
	Username          string `json:"username" binding:"required,max=40"`
	DateOfBirth       string `json:"date_of_birth" binding:"required"`
	Gender            string `json:"gender" binding:"required"`
	GenderSubcategory string `json:"gender_subcategory,omitempty"`
	Bio               string `json:"bio" binding:"max=500"`
}

type LocationRequest struct {
	Latitude     *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude    *float64 `json:"longitude" binding:"required,min=-180,max=180"`
	LocationName string   `json:"location_name,omitempty"`
}

type PurposeRequest struct {
	Purpose string `json:"purpose" binding:"required"`
}

type SeekRequest struct {
	Want string `json:"want" binding:"required,oneof=professional social both"`
}

type FlagsRequest struct {
	Selected map[string]bool `json:"selected" binding:"required"`
}

type OnlineStatusRequest struct {
	IsOnline *bool `json:"is_online" binding:"required"`
}

type DeviceTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func NewUserHandler(profiles *services.ProfileService, discovery *services.DiscoveryService, cfg *config.Config, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{profiles: profiles, discovery: discovery, cfg: cfg, log: log}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

func (h *UserHandler) ProfileComplete(c *gin.Context) {
	complete, err := h.profiles.IsProfileComplete(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complete": complete})
}

func (h *UserHandler) UpdateBasics(c *gin.Context) {
	var req BasicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondProfile(c)(h.profiles.UpdateBasics(c.Request.Context(), currentUser(c), services.BasicsInput{
		Username:          req.Username,
		DateOfBirth:       req.DateOfBirth,
		Gender:            req.Gender,
		GenderSubcategory: req.GenderSubcategory,
		Bio:               req.Bio,
	}))
}

func (h *UserHandler) UpdateLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondProfile(c)(h.profiles.UpdateLocation(c.Request.Context(), currentUser(c), *req.Latitude, *req.Longitude, req.LocationName))
}

func (h *UserHandler) UpdatePurpose(c *gin.Context) {
	var req PurposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondProfile(c)(h.profiles.UpdatePurpose(c.Request.Context(), currentUser(c), req.Purpose))
}

func (h *UserHandler) UpdateSeek(c *gin.Context) {
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondProfile(c)(h.profiles.UpdateSeek(c.Request.Context(), currentUser(c), req.Want))
}

func (h *UserHandler) UpdateInterests(c *gin.Context) {
	var req FlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondProfile(c)(h.profiles.UpdateInterests(c.Request.Context(), currentUser(c), req.Selected))
}

func (h *UserHandler) UpdateQualities(c *gin.Context) {
	var req FlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondProfile(c)(h.profiles.UpdateQualities(c.Request.Context(), currentUser(c), req.Selected))
}

func (h *UserHandler) UploadPhoto(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}
	if header.Size > h.cfg.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("File too large, maximum size is %d bytes", h.cfg.MaxFileSize)})
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer file.Close()

	contentType, err := imageContentType(file, header)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	profile, err := h.profiles.UpdateProfileImage(c.Request.Context(), currentUser(c), file, header.Size, contentType)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Photo uploaded successfully", "user": profile})
}

func (h *UserHandler) DeletePhoto(c *gin.Context) {
	profile, err := h.profiles.RemoveProfileImage(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Photo deleted successfully", "user": profile})
}

// GetPhoto redirects to a short-lived signed URL of a user's image.
func (h *UserHandler) GetPhoto(c *gin.Context) {
	url, err := h.profiles.ProfileImageURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

func (h *UserHandler) UpdateOnlineStatus(c *gin.Context) {
	var req OnlineStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.profiles.UpdateOnlineStatus(c.Request.Context(), currentUser(c), *req.IsOnline); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_online": *req.IsOnline})
}

func (h *UserHandler) RegisterDeviceToken(c *gin.Context) {
	var req DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.profiles.RegisterDeviceToken(c.Request.Context(), currentUser(c), req.Token); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device token registered"})
}

// DiscoverUsers serves the next page of cards after ?cursor, ?limit cards long.
func (h *UserHandler) DiscoverUsers(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}

	batch, err := h.discovery.FetchNextBatch(c.Request.Context(), currentUser(c), c.Query("cursor"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Catalog lists the options the onboarding screens offer.
func (h *UserHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"interests": models.InterestOptions,
		"qualities": models.QualityOptions,
		"wants":     models.WantOptions,
	})
}

// respondProfile writes the result of a profile patch.
func (h *UserHandler) respondProfile(c *gin.Context) func(*models.Profile, error) {
	return func(profile *models.Profile, err error) {
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": profile})
	}
}

// imageContentType trusts the part header unless it is missing or generic,
// in which case the first bytes are sniffed.
func imageContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType, nil
	}
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
