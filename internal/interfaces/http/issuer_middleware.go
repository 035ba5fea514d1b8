package http

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	pkgecf "github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// RequireOwnRNC impide operar sobre un RNC distinto al del token. Debe usarse DESPUÉS de
// AuthMiddleware (necesita LocalRNC). Revisa el query "rnc" y, en bodies JSON, el campo "rnc".
//
// Comportamiento:
//   - token sin RNC → no restringe (instancia sin emisor configurado).
//   - 403 RNC_MISMATCH → el RNC pedido no es el del token.
func RequireOwnRNC() fiber.Handler {
	return func(c *fiber.Ctx) error {
		own := pkgecf.NormalizeTaxID(GetRNC(c))
		if own == "" {
			return c.Next()
		}

		requested := c.Query("rnc")
		if requested == "" && len(c.Body()) > 0 && c.Is("json") {
			var body struct {
				RNC string `json:"rnc"`
			}
			_ = json.Unmarshal(c.Body(), &body)
			requested = body.RNC
		}
		if requested != "" && pkgecf.NormalizeTaxID(requested) != own {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "RNC_MISMATCH",
				Message: "el token no autoriza operar con el RNC " + requested,
			})
		}

		return c.Next()
	}
}
