package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/domain"
)

// kindStatus traducción de la taxonomía de errores a HTTP.
var kindStatus = map[domain.Kind]struct {
	status int
	code   string
}{
	domain.KindInvalidInput:        {fiber.StatusBadRequest, "VALIDATION"},
	domain.KindCredential:          {fiber.StatusInternalServerError, "CREDENTIAL"},
	domain.KindAuthentication:      {fiber.StatusUnauthorized, "DGII_AUTHENTICATION"},
	domain.KindSessionExpired:      {fiber.StatusUnauthorized, "DGII_SESSION_EXPIRED"},
	domain.KindSigning:             {fiber.StatusUnprocessableEntity, "SIGNING"},
	domain.KindValidationRejection: {fiber.StatusUnprocessableEntity, "DGII_REJECTED"},
	domain.KindNotFound:            {fiber.StatusNotFound, "NOT_FOUND"},
	domain.KindTransport:           {fiber.StatusBadGateway, "DGII_UNAVAILABLE"},
	domain.KindProtocol:            {fiber.StatusBadGateway, "DGII_PROTOCOL"},
}

// writeError responde con el status que corresponde al Kind del error.
func writeError(c *fiber.Ctx, err error) error {
	resp := dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()}
	status := fiber.StatusInternalServerError
	if m, ok := kindStatus[domain.KindOf(err)]; ok {
		status, resp.Code = m.status, m.code
	}
	var de *domain.Error
	if errors.As(err, &de) {
		resp.AuthorityCode = de.Code
		for _, msg := range de.Messages {
			resp.Details = append(resp.Details, msg.String())
		}
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: code, Message: msg})
}
