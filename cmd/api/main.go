package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jhoicas/ecf-dgii/docs"
	"github.com/jhoicas/ecf-dgii/internal/application/ecf"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/cache"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/ecf-dgii/internal/infrastructure/pdf"
	httpRouter "github.com/jhoicas/ecf-dgii/internal/interfaces/http"
	"github.com/jhoicas/ecf-dgii/pkg/config"
	"github.com/jhoicas/ecf-dgii/pkg/logger"
)

// @title                       e-CF DGII API
// @version                     1.0
// @description                 Firma, envío y consulta de comprobantes fiscales electrónicos ante la DGII.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:            cfg.App.Env,
		Level:          cfg.App.LogLevel,
		App:            cfg.App.Name,
		ECFEnvironment: cfg.ECF.Environment,
	})
	log.Info().Str("env", cfg.App.Env).Msg("iniciando aplicación")

	cred, err := dgii.LoadCredential(cfg.ECF.CertPath, cfg.ECF.CertKeyPath, cfg.ECF.CertPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("cargar certificado del emisor")
	}
	env, err := entity.ParseEnvironment(cfg.ECF.Environment)
	if err != nil {
		log.Fatal().Err(err).Msg("ambiente e-CF")
	}

	// Gateway DGII: autenticación por semilla, recepción, consultas y directorio.
	endpoints := dgii.EndpointsFor(env).WithOverrides(cfg.ECF.BaseURL, cfg.ECF.FCBaseURL, cfg.ECF.StatusURL)
	client := dgii.NewClient(cred, env,
		dgii.WithEndpoints(endpoints),
		dgii.WithTimeout(cfg.ECF.Timeout),
		dgii.WithLogger(log.Component("dgii")),
	)

	// Métricas por operación del gateway
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gwMetrics, err := metrics.NewCollectors(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("registrar métricas")
	}
	var gateway ecf.Gateway = metrics.NewGateway(client, gwMetrics)

	// Directorio de receptores en caché (ECF_DIRECTORY_CACHE_TTL_SECONDS=0 lo desactiva)
	if cfg.ECF.DirectoryCacheTTL > 0 {
		dirCache, err := cache.NewDirectoryGateway(gateway, cfg.ECF.DirectoryCacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("caché del directorio")
		}
		defer dirCache.Close()
		gateway = dirCache
		log.Info().Dur("ttl", cfg.ECF.DirectoryCacheTTL).Msg("caché de directorio activa")
	}

	ecfSvc := ecf.NewService(gateway, signer.NewDigitalSignatureService(cred), cred, env,
		ecf.WithLogger(log.Component("ecf")),
	)

	// PDF: representación impresa con el timbre (QR) del e-CF
	pdfGenerator := infrapdf.NewMarotoPDFGenerator(endpoints.ECF, endpoints.FC)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.ECF.Timeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: cfg.HTTP.SwaggerFile,
		Path:     "docs",
		Title:    "e-CF DGII API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "environment": string(env)})
	})

	if cfg.HTTP.MetricsPath != "" {
		app.Get(cfg.HTTP.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	httpRouter.Router(app, httpRouter.RouterDeps{
		ECF: ecfSvc,
		PDF: pdfGenerator,
		Auth: httpRouter.AuthConfig{
			APIKey:     cfg.App.APIKey,
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
			ExpMinutes: cfg.JWT.Expiration,
			IssuerRNC:  cfg.ECF.IssuerRNC,
		},
		JWTSecret: cfg.JWT.Secret,
		Logger:    log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
