package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App  AppConfig
	JWT  JWTConfig
	HTTP HTTPConfig
	ECF  ECFConfig
}

// ECFConfig configuración para la comunicación con el gateway e-CF de la DGII.
type ECFConfig struct {
	Environment  string // DEV (TesteCF), TEST (CerteCF), PROD (eCF)
	CertPath     string // Ruta al certificado .p12 o .pem
	CertKeyPath  string // Ruta a la llave privada .pem (si CertPath es solo el certificado)
	CertPassword string // Contraseña del .p12
	IssuerRNC    string // RNC del emisor por defecto
	BaseURL      string // Opcional: reemplaza https://ecf.dgii.gov.do/{ambiente}
	FCBaseURL    string // Opcional: reemplaza https://fc.dgii.gov.do/{ambiente}
	StatusURL    string // Opcional: reemplaza el endpoint de estatus de servicios
	Timeout      time.Duration

	DirectoryCacheTTL time.Duration // 0 desactiva la caché del directorio de receptores
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
	APIKey   string // Llave para emitir tokens de la API local (POST /api/auth/token)
}

// JWTConfig configuración de JWT de la API local.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host        string
	Port        int
	SwaggerFile string
	MetricsPath string // vacío desactiva la exposición de métricas
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, ECF_ENVIRONMENT, ECF_CERT_PATH, JWT_SECRET, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "ecf-dgii"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
			APIKey:   getString(v, "API_KEY", ""),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "ecf-dgii"),
		},
		HTTP: HTTPConfig{
			Host:        getString(v, "HTTP_HOST", "0.0.0.0"),
			Port:        getInt(v, "HTTP_PORT", 8080),
			SwaggerFile: getString(v, "HTTP_SWAGGER_FILE", "./docs/swagger.json"),
			MetricsPath: getString(v, "HTTP_METRICS_PATH", "/metrics"),
		},
		ECF: ECFConfig{
			Environment:  strings.ToUpper(getString(v, "ECF_ENVIRONMENT", "DEV")),
			CertPath:     getString(v, "ECF_CERT_PATH", ""),
			CertKeyPath:  getString(v, "ECF_CERT_KEY_PATH", ""),
			CertPassword: getString(v, "ECF_CERT_PASSWORD", ""),
			IssuerRNC:    getString(v, "ECF_RNC_EMISOR", ""),
			BaseURL:      strings.TrimRight(getString(v, "ECF_BASE_URL", ""), "/"),
			FCBaseURL:    strings.TrimRight(getString(v, "ECF_FC_BASE_URL", ""), "/"),
			StatusURL:    getString(v, "ECF_STATUS_URL", ""),
			Timeout:      time.Duration(getInt(v, "ECF_TIMEOUT_SECONDS", 60)) * time.Second,

			DirectoryCacheTTL: time.Duration(getInt(v, "ECF_DIRECTORY_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
	}

	switch cfg.ECF.Environment {
	case "DEV", "TEST", "PROD":
	default:
		return nil, fmt.Errorf("config: ECF_ENVIRONMENT desconocido %q (usar DEV|TEST|PROD)", cfg.ECF.Environment)
	}
	if cfg.ECF.DirectoryCacheTTL < 0 {
		cfg.ECF.DirectoryCacheTTL = 0
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
