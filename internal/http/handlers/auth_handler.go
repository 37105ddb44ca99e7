package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

// RefreshCookie holds the refresh token.
const RefreshCookie = "refreshToken"

// CredentialsRequest is the signup and login payload.
type CredentialsRequest struct {
	Email    string `json:"email" example:"buyer@example.com"`
	Password string `json:"password" example:"correct horse"`
}

// AuthResponse is returned by signup and login. The same tokens are also set
// as httpOnly cookies.
type AuthResponse struct {
	User    domain.PublicUser  `json:"user"`
	Tokens  services.TokenPair `json:"tokens"`
	Message string             `json:"message" example:"Login successful"`
}

// RefreshRequest optionally carries the refresh token in the body for
// clients that do not use cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse is returned by POST /auth/refresh.
type RefreshResponse struct {
	Message string             `json:"message" example:"Token refreshed"`
	Tokens  services.TokenPair `json:"tokens"`
}

// DisconnectRequest names the session to revoke.
type DisconnectRequest struct {
	SessionID string `json:"sessionId" example:"5f0c6f5e-3c1b-4a59-9d55-2b1e6b1f4c11"`
}

// SessionsResponse lists the caller's live sessions.
type SessionsResponse struct {
	Sessions []services.SessionInfo `json:"sessions"`
}

// Signup godoc
// @ID          signup
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     201   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid input or user exists"
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.auth.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	h.setAuthCookies(c, res.Tokens)
	ok(c, http.StatusCreated, AuthResponse{User: res.User, Tokens: res.Tokens, Message: "Signup successful"})
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Description Issues an access/refresh token pair, sets them as httpOnly cookies and returns the user.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Any login failure is a 401, including malformed credentials.
		if services.KindOf(err) == services.KindValidation {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
			return
		}
		failErr(c, err)
		return
	}
	h.setAuthCookies(c, res.Tokens)
	ok(c, http.StatusOK, AuthResponse{User: res.User, Tokens: res.Tokens, Message: "Login successful"})
}

// Refresh godoc
// @ID          refreshTokens
// @Summary     Rotate the token pair
// @Description Reads the refreshToken cookie (or body field), rotates the session and resets both cookies.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RefreshRequest  false  "Refresh token when not sent as a cookie"
// @Success     200   {object}  handlers.RefreshResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Missing or invalid refresh token"
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	token := refreshTokenFrom(c)
	if token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrMissingRefreshToken.Msg)
		return
	}
	pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		h.clearAuthCookies(c)
		failErr(c, err)
		return
	}
	h.setAuthCookies(c, pair)
	ok(c, http.StatusOK, RefreshResponse{Message: "Token refreshed", Tokens: pair})
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Deletes the session bound to the refresh token and clears both cookies.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.MessageResponse
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), refreshTokenFrom(c)); err != nil {
		failErr(c, err)
		return
	}
	h.clearAuthCookies(c)
	ok(c, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.PublicUser
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.auth.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// Sessions godoc
// @ID          listSessions
// @Summary     List my live sessions
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.SessionsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/sessions [get]
func (h *Handlers) Sessions(c *gin.Context) {
	list, err := h.auth.ListSessions(c.Request.Context(), middleware.UserID(c), refreshTokenFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionsResponse{Sessions: list})
}

// Disconnect godoc
// @ID          disconnectSession
// @Summary     Revoke one of my sessions
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.DisconnectRequest  true  "Session to revoke"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Missing sessionId"
// @Failure     404   {object}  handlers.ErrorResponse  "Session not found"
// @Router      /auth/disconnect [post]
func (h *Handlers) Disconnect(c *gin.Context) {
	var req DisconnectRequest
	_ = c.ShouldBindJSON(&req)
	sid := strings.TrimSpace(req.SessionID)
	if sid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Missing sessionId")
		return
	}
	if err := h.auth.Disconnect(c.Request.Context(), middleware.UserID(c), sid); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Session disconnected"})
}

func refreshTokenFrom(c *gin.Context) string {
	if v, err := c.Cookie(RefreshCookie); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if c.Request.ContentLength == 0 {
		return ""
	}
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (h *Handlers) setAuthCookies(c *gin.Context, t services.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, t.AccessToken, int(h.cookies.AccessTTL.Seconds()), "/", "", h.cookies.Secure, true)
	c.SetCookie(RefreshCookie, t.RefreshToken, int(h.cookies.RefreshTTL.Seconds()), "/", "", h.cookies.Secure, true)
}

func (h *Handlers) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", "", h.cookies.Secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", h.cookies.Secure, true)
}
