package api

import (
	"net/http"
	"strings"

	"learnedge/apperr"
	"learnedge/config"
	"learnedge/db"
	"learnedge/models"
	"learnedge/utils"

	"github.com/gin-gonic/gin"
)

// --- Register ---

// RegisterRequest defines the expected body for creating an account.
type RegisterRequest struct {
	UserName  string `json:"user_name" binding:"required,min=2,max=50"`
	UserEmail string `json:"user_email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Role      string `json:"role" binding:"omitempty,oneof=user instructor"`
}

// RegisterHandler creates a new account.
// @Summary      Register a New Account
// @Description  Creates an account with a unique user name and email.
// @Description
// @Description  `role` is optional and defaults to `user`. Use `instructor` for accounts that publish courses.
// @Description  Emails are stored lower-cased and compared without regard to case.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        account body RegisterRequest true "Account details. The password must be at least 6 characters."
// @Success      201  {object}  utils.Envelope{data=models.AccountView} "Account created."
// @Failure      400  {object}  utils.Envelope "Bad Request: a field is missing or malformed."
// @Failure      409  {object}  utils.Envelope "Conflict: the user name or email is already registered."
// @Failure      500  {object}  utils.Envelope "Internal Server Error."
// @Router       /auth/register [post]
func RegisterHandler(c *gin.Context, store db.Store, cfg *config.Config) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	hash, err := utils.HashPassword(req.Password, cfg.BcryptCost)
	if err != nil {
		utils.RespondError(c, apperr.Internal(err, "hashing password"))
		return
	}

	account, err := store.CreateAccount(c.Request.Context(), models.Account{
		UserName:     strings.TrimSpace(req.UserName),
		UserEmail:    strings.ToLower(strings.TrimSpace(req.UserEmail)),
		PasswordHash: hash,
		Role:         req.Role,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.RespondOK(c, http.StatusCreated, "account registered", account.View())
}

// --- Login ---

// LoginRequest defines the expected body for logging in.
type LoginRequest struct {
	UserEmail string `json:"user_email" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	AccessToken string             `json:"access_token"`
	User        models.AccountView `json:"user"`
}

// LoginHandler exchanges credentials for an access token.
// @Summary      Log In
// @Description  Checks the email and password and returns a bearer token valid for the configured lifetime.
// @Description  Send it as `Authorization: Bearer <token>` on protected endpoints.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        credentials body LoginRequest true "Email and password."
// @Success      200  {object}  utils.Envelope{data=LoginResponse} "Logged in."
// @Failure      400  {object}  utils.Envelope "Bad Request: email or password missing."
// @Failure      401  {object}  utils.Envelope "Unauthorized: invalid credentials."
// @Failure      500  {object}  utils.Envelope "Internal Server Error."
// @Router       /auth/login [post]
func LoginHandler(c *gin.Context, store db.Store, cfg *config.Config) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	account, err := store.GetAccountByEmail(c.Request.Context(), strings.TrimSpace(req.UserEmail))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			utils.RespondError(c, apperr.Unauthorized("invalid credentials"))
			return
		}
		utils.RespondError(c, err)
		return
	}
	if !utils.CheckPasswordHash(req.Password, account.PasswordHash) {
		utils.RespondError(c, apperr.Unauthorized("invalid credentials"))
		return
	}

	token, err := utils.GenerateJWT(account, cfg)
	if err != nil {
		utils.RespondError(c, apperr.Internal(err, "issuing token"))
		return
	}

	utils.RespondOK(c, http.StatusOK, "logged in", LoginResponse{AccessToken: token, User: account.View()})
}

// --- Check Auth ---

// CheckAuthHandler returns the identity carried by the caller's token.
// @Summary      Check Authentication
// @Description  Returns the identity stored in the bearer token. Useful for a client to restore a session.
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  utils.Envelope{data=models.Identity} "The authenticated identity."
// @Failure      401  {object}  utils.Envelope "Unauthorized: token missing, malformed, invalid or expired."
// @Router       /auth/check-auth [get]
func CheckAuthHandler(c *gin.Context) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	utils.RespondOK(c, http.StatusOK, "authenticated user", identity)
}
