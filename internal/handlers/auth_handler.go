package handlers

import (
	"errors"
	"time"

	"github.com/avdeevsm/blogger-backend/internal/config"
	"github.com/avdeevsm/blogger-backend/internal/dto"
	"github.com/avdeevsm/blogger-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const refreshCookieName = "refreshToken"

type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	cfg         *config.Config
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService, cfg: cfg}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.LoginOrEmail == "" || req.Password == "" {
		return badRequest(c, "loginOrEmail and password are required")
	}

	pair, err := h.authService.Login(c.UserContext(), req.LoginOrEmail, req.Password, deviceName(c), c.IP())
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			return unauthorized(c)
		}
		return internalError(c, err)
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	return c.JSON(dto.AccessTokenResponse{AccessToken: pair.AccessToken})
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	pair, err := h.authService.Refresh(c.UserContext(), c.Cookies(refreshCookieName), deviceName(c), c.IP())
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			return unauthorized(c)
		}
		return internalError(c, err)
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	return c.JSON(dto.AccessTokenResponse{AccessToken: pair.AccessToken})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	err := h.authService.Logout(c.UserContext(), c.Cookies(refreshCookieName))
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			return unauthorized(c)
		}
		return internalError(c, err)
	}

	h.clearRefreshCookie(c)
	return c.SendStatus(fiber.StatusNoContent)
}

// Me resolves the bearer token placed in locals by the JWT middleware.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	bearer, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return unauthorized(c)
	}
	claims, ok := bearer.Claims.(jwt.MapClaims)
	if !ok {
		return unauthorized(c)
	}
	subject, _ := claims["sub"].(string)

	user, err := h.authService.CurrentUser(c.UserContext(), subject)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			return unauthorized(c)
		}
		return internalError(c, err)
	}

	return c.JSON(dto.MeResponse{Email: user.Email, Login: user.Login, UserID: user.ID})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.userService.Register(c.UserContext(), req.Login, req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, services.ErrLoginTaken),
			errors.Is(err, services.ErrEmailTaken),
			errors.Is(err, services.ErrInvalidInput):
			return badRequest(c, err.Error())
		default:
			return internalError(c, err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) ConfirmRegistration(c *fiber.Ctx) error {
	var req dto.ConfirmationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.userService.ConfirmRegistration(c.UserContext(), req.Code); err != nil {
		if errors.Is(err, services.ErrCodeInvalid) {
			return badRequest(c, err.Error())
		}
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) ResendConfirmation(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.userService.ResendConfirmation(c.UserContext(), req.Email); err != nil {
		if errors.Is(err, services.ErrEmailNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) PasswordRecovery(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.userService.RecoverPassword(c.UserContext(), req.Email); err != nil {
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) NewPassword(c *fiber.Ctx) error {
	var req dto.NewPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.userService.SetNewPassword(c.UserContext(), req.RecoveryCode, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrCodeInvalid) || errors.Is(err, services.ErrInvalidInput) {
			return badRequest(c, err.Error())
		}
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, tokenValue string) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    tokenValue,
		Path:     "/",
		Expires:  time.Now().Add(h.cfg.JWTRefreshExpiry),
		HTTPOnly: true,
		Secure:   h.cfg.SecureCookies(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   h.cfg.SecureCookies(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func deviceName(c *fiber.Ctx) string {
	if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
		return ua
	}
	return "device"
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: message,
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}

func internalError(c *fiber.Ctx, err error) error {
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
