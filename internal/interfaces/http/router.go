package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ECF       ECFService
	PDF       RepresentationGenerator
	Auth      AuthConfig
	JWTSecret string
	Logger    zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", RequestLogger(deps.Logger))

	// Auth (público)
	authHandler := NewAuthHandler(deps.Auth)
	api.Post("/auth/token", authHandler.Token)

	// Rutas protegidas (requieren Bearer Token y solo operan sobre el RNC del token)
	protected := api.Group("/ecf", AuthMiddleware(deps.JWTSecret), RequireOwnRNC())
	issuer := RequireRole(RoleIssuer)
	reader := RequireRole(RoleIssuer, RoleViewer)

	h := NewECFHandler(deps.ECF, deps.PDF)

	// Sesión y firma (solo emisor)
	protected.Post("/session", issuer, h.Authenticate)
	protected.Get("/session", reader, h.Session)
	protected.Post("/sign", issuer, h.Sign)

	// Envíos
	protected.Post("/documents", issuer, h.Submit)
	protected.Post("/documents/signed", issuer, h.SendSigned)
	protected.Post("/summaries", issuer, h.SendSummary)
	protected.Post("/approvals", issuer, h.SendApproval)
	protected.Post("/voids", issuer, h.VoidSequences)

	// Consultas
	protected.Get("/tracking/:trackId", reader, h.TrackByID)
	protected.Get("/tracking", reader, h.TrackByBusinessKey)
	protected.Get("/inquiry", reader, h.Inquiry)
	protected.Get("/directory/:rnc?", reader, h.Directory)
	protected.Get("/status", reader, h.ServiceStatus)
	protected.Post("/representation", reader, h.Representation)
}
