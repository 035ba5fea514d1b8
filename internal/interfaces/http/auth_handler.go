package http

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/pkg/jwt"
)

// AuthConfig parámetros para emitir tokens de la API.
type AuthConfig struct {
	APIKey     string
	Secret     string
	Issuer     string
	ExpMinutes int
	IssuerRNC  string // RNC del emisor que opera esta instancia
}

// AuthHandler emite tokens de acceso a cambio de la API key.
type AuthHandler struct {
	cfg AuthConfig
}

// NewAuthHandler construye el handler de auth.
func NewAuthHandler(cfg AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// Token godoc
// @Summary      Emitir token de acceso
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  dto.TokenRequest  true  "api_key, client_id, role"
// @Success      200   {object}  dto.TokenResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      401   {object}  dto.ErrorResponse
// @Router       /api/auth/token [post]
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var in dto.TokenRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	if in.APIKey == "" || strings.TrimSpace(in.ClientID) == "" {
		return badRequest(c, "VALIDATION", "api_key y client_id son requeridos")
	}
	if h.cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(in.APIKey), []byte(h.cfg.APIKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "api_key inválida"})
	}
	role := in.Role
	if role == "" {
		role = RoleIssuer
	}
	if role != RoleIssuer && role != RoleViewer {
		return badRequest(c, "VALIDATION", "role debe ser emisor o consulta")
	}
	tok, err := jwt.Generate(h.cfg.Secret, strings.TrimSpace(in.ClientID), h.cfg.IssuerRNC, role, h.cfg.Issuer, h.cfg.ExpMinutes)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.TokenResponse{AccessToken: tok, TokenType: "Bearer", ExpiresIn: h.cfg.ExpMinutes * 60})
}
