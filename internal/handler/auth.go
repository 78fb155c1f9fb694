package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vidtube/backend/internal/model"
	"github.com/vidtube/backend/internal/service"
)

type AuthHandler struct {
	svc *service.SessionService
}

func NewAuthHandler(svc *service.SessionService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "New user details"
// @Success 201 {object} model.APIResponse
// @Failure 400 {object} model.APIError
// @Failure 409 {object} model.APIError
// @Failure 500 {object} model.APIError
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.NewAPIResponse(http.StatusCreated, user, "user registered successfully"))
}

// Login godoc
// @Summary Login with username or email
// @Description Issues an access/refresh token pair. Both tokens are also set
// @Description as HTTP-only cookies.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Login key and password"
// @Success 200 {object} model.APIResponse
// @Failure 400 {object} model.APIError
// @Failure 401 {object} model.APIError
// @Failure 404 {object} model.APIError
// @Failure 500 {object} model.APIError
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, user, err := h.svc.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, model.NewAPIResponse(http.StatusOK, model.LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "logged in successfully"))
}

// Logout godoc
// @Summary Logout
// @Description Clears the stored refresh token and both auth cookies.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.APIResponse
// @Failure 401 {object} model.APIError
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Logout(c.Request.Context(), user.ID); err != nil {
		writeAuthError(c, err)
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, model.NewAPIResponse(http.StatusOK, nil, "logged out successfully"))
}

// Refresh godoc
// @Summary Refresh the token pair
// @Description Rotates the refresh token. The token is read from the
// @Description refreshToken cookie or from the request body.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest false "Refresh token (alternative to cookie)"
// @Success 200 {object} model.APIResponse
// @Failure 401 {object} model.APIError
// @Failure 500 {object} model.APIError
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented, _ := c.Cookie(service.RefreshCookieName())
	if presented == "" {
		var req model.RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	pair, err := h.svc.Refresh(c.Request.Context(), presented)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, model.NewAPIResponse(http.StatusOK, model.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "access token refreshed"))
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.APIResponse
// @Failure 401 {object} model.APIError
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	view, err := h.svc.CurrentUser(c.Request.Context(), user.ID)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewAPIResponse(http.StatusOK, view, "current user fetched"))
}

// ChangePassword godoc
// @Summary Change the current user's password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.ChangePasswordRequest true "Old and new passwords"
// @Success 200 {object} model.APIResponse
// @Failure 400 {object} model.APIError
// @Failure 401 {object} model.APIError
// @Router /api/v1/auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewAPIResponse(http.StatusOK, nil, "password changed successfully"))
}

func (h *AuthHandler) setAuthCookies(c *gin.Context, pair service.TokenPair) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(service.AccessCookieName(), pair.AccessToken,
		int(h.svc.Tokens().AccessTTL().Seconds()), cfg.Path, cfg.Domain, cfg.Secure, true)
	c.SetCookie(service.RefreshCookieName(), pair.RefreshToken,
		int(h.svc.Tokens().RefreshTTL().Seconds()), cfg.Path, cfg.Domain, cfg.Secure, true)
}

// clearAuthCookies must mirror the attributes used by setAuthCookies; a
// mismatch silently fails to clear in most browsers.
func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(service.AccessCookieName(), "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
	c.SetCookie(service.RefreshCookieName(), "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, model.NewAPIError(status, message))
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(c, http.StatusNotFound, "user does not exist")
	case errors.Is(err, service.ErrConflict):
		writeError(c, http.StatusConflict, "user with email or username already exists")
	default:
		writeError(c, http.StatusInternalServerError, "something went wrong")
	}
}
