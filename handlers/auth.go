package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillpad/quillpad/internal/identity"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/quillpad/quillpad/pkg/middleware"
)

const (
	msgCheckEmail   = "Please check your email for verification link"
	msgResetSent    = "Password reset link sent to your email"
	msgEmailOK      = "Your email is confirmed. You can now sign in."
	msgPasswordDone = "Your password has been updated. You can now sign in."
)

// AuthHandler serves the credential pages and the session cookies.
type AuthHandler struct {
	id      *identity.Service
	cookies CookieConfig
}

func NewAuthHandler(id *identity.Service, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{id: id, cookies: cookies}
}

// Register mounts the auth pages. Sign-in, sign-up and reset redirect to the
// dashboard when a session is already present.
func (h *AuthHandler) Register(r gin.IRouter) {
	r.GET("/", h.index)

	guest := r.Group("/", middleware.RedirectIfSession(h.Lookup, "/dashboard"))
	guest.GET("/signin", h.signInPage)
	guest.POST("/signin", h.signIn)
	guest.GET("/signup", h.signUpPage)
	guest.POST("/signup", h.signUp)
	guest.GET("/reset-password", h.resetPage)
	guest.POST("/reset-password", h.reset)

	r.GET("/reset-password/confirm", h.resetConfirmPage)
	r.POST("/reset-password/confirm", h.resetConfirm)
	r.GET("/verify", h.verify)
	r.POST("/signout", h.signOut)
	r.POST("/auth/refresh", h.refresh)
}

// Lookup resolves the session cookies. On success the user, subject and a
// claims map are stored on the context. A refreshed access token is written
// back as a cookie.
func (h *AuthHandler) Lookup(c *gin.Context) (bool, error) {
	access, _ := c.Cookie(accessCookie)
	refresh, _ := c.Cookie(refreshCookie)
	if access == "" && refresh == "" {
		return false, nil
	}
	sess, err := h.id.CurrentUser(c.Request.Context(), access, refresh)
	if err != nil {
		return false, err
	}
	if sess == nil {
		h.cookies.clear(c)
		return false, nil
	}
	if sess.Refreshed {
		h.cookies.setAccess(c, sess.AccessToken)
	}
	c.Set("user", sess.User)
	c.Set("sub", sess.User.Sub)
	c.Set("claims", map[string]interface{}{"sub": sess.User.Sub, "email": sess.User.Email})
	return true, nil
}

func (h *AuthHandler) index(c *gin.Context) {
	if _, err := h.Lookup(c); err != nil {
		logger.Warnf("index session lookup: %v", err)
	}
	render(c, http.StatusOK, "index.html", page{})
}

func (h *AuthHandler) signInPage(c *gin.Context) {
	render(c, http.StatusOK, "signin.html", page{Title: "Sign in"})
}

func (h *AuthHandler) signIn(c *gin.Context) {
	email := c.PostForm("email")
	sess, err := h.id.SignIn(c.Request.Context(), email, c.PostForm("password"))
	if err != nil {
		render(c, authStatus(err), "signin.html", page{Title: "Sign in", Email: email, Error: authMessage("signin", err)})
		return
	}
	h.cookies.setSession(c, sess.AccessToken, sess.RefreshToken)
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

func (h *AuthHandler) signUpPage(c *gin.Context) {
	render(c, http.StatusOK, "signup.html", page{Title: "Sign up"})
}

func (h *AuthHandler) signUp(c *gin.Context) {
	email := c.PostForm("email")
	err := h.id.SignUp(c.Request.Context(), email, c.PostForm("password"), c.PostForm("confirmPassword"))
	if err != nil {
		render(c, authStatus(err), "signup.html", page{Title: "Sign up", Email: email, Error: authMessage("signup", err)})
		return
	}
	render(c, http.StatusOK, "signup.html", page{Title: "Sign up", Message: msgCheckEmail})
}

func (h *AuthHandler) resetPage(c *gin.Context) {
	render(c, http.StatusOK, "reset.html", page{Title: "Reset password"})
}

func (h *AuthHandler) reset(c *gin.Context) {
	email := c.PostForm("email")
	if err := h.id.SendPasswordReset(c.Request.Context(), email); err != nil {
		render(c, authStatus(err), "reset.html", page{Title: "Reset password", Email: email, Error: authMessage("reset", err)})
		return
	}
	render(c, http.StatusOK, "reset.html", page{Title: "Reset password", Message: msgResetSent})
}

func (h *AuthHandler) resetConfirmPage(c *gin.Context) {
	p := page{Title: "Choose a new password", Token: c.Query("token")}
	if p.Token == "" {
		p.Error = identity.ErrInvalidToken.Error()
	}
	render(c, http.StatusOK, "reset_confirm.html", p)
}

func (h *AuthHandler) resetConfirm(c *gin.Context) {
	token := c.PostForm("token")
	err := h.id.ResetPassword(c.Request.Context(), token, c.PostForm("password"), c.PostForm("confirmPassword"))
	if err != nil {
		p := page{Title: "Choose a new password", Token: token, Error: authMessage("reset_confirm", err)}
		if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrUnsupported) {
			p.Token = ""
		}
		render(c, authStatus(err), "reset_confirm.html", p)
		return
	}
	render(c, http.StatusOK, "message.html", page{Title: "Password updated", Message: msgPasswordDone})
}

func (h *AuthHandler) verify(c *gin.Context) {
	if err := h.id.VerifyEmail(c.Request.Context(), c.Query("token")); err != nil {
		render(c, authStatus(err), "message.html", page{Title: "Email confirmation", Error: authMessage("verify", err)})
		return
	}
	render(c, http.StatusOK, "message.html", page{Title: "Email confirmed", Message: msgEmailOK})
}

func (h *AuthHandler) signOut(c *gin.Context) {
	access, _ := c.Cookie(accessCookie)
	refresh, _ := c.Cookie(refreshCookie)
	if err := h.id.SignOut(c.Request.Context(), access, refresh); err != nil {
		logger.Errorf("signout: %v", err)
	}
	h.cookies.clear(c)
	c.Redirect(http.StatusSeeOther, "/signin")
}

// refresh accepts a refresh token and returns a new access token
func (h *AuthHandler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.id.Refresh(c.Request.Context(), req.RefreshToken)
	if errors.Is(err, identity.ErrInvalidToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err != nil {
		logger.Errorf("refresh: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": sess.AccessToken, "expires_in": int(h.id.AccessTTL().Seconds())})
}

var userFacing = []error{
	identity.ErrPasswordMismatch,
	identity.ErrEmailRequired,
	identity.ErrWeakPassword,
	identity.ErrInvalidCredentials,
	identity.ErrEmailNotConfirmed,
	identity.ErrEmailTaken,
	identity.ErrInvalidToken,
	identity.ErrUnsupported,
}

// authMessage returns the identity error's own message for known errors
// and logs anything else behind a generic fallback.
func authMessage(op string, err error) string {
	for _, known := range userFacing {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	logger.Errorf("%s: %v", op, err)
	return genericError
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrEmailNotConfirmed):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, identity.ErrUnsupported):
		return http.StatusNotImplemented
	}
	for _, known := range userFacing {
		if errors.Is(err, known) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
