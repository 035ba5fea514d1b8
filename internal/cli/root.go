// Package cli comandos de ecfctl: firma y utilidades locales, y operaciones contra la DGII.
package cli

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/ecf-dgii/internal/application/ecf"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/pkg/config"
	pkgecf "github.com/jhoicas/ecf-dgii/pkg/ecf"
	"github.com/jhoicas/ecf-dgii/pkg/logger"
)

// options flags globales; reemplazan los valores de la configuración.
type options struct {
	certPath      string
	keyPath       string
	password      string
	environment   string
	caPath        string
	ecfURL        string
	fcURL         string
	statusURL     string
	inputEncoding string
	logLevel      string
}

// runtime estado compartido por los comandos después de PersistentPreRunE.
type runtime struct {
	opts options
	cfg  *config.Config
	log  *logger.Logger
}

// NewRootCmd arma el árbol de comandos.
func NewRootCmd() *cobra.Command {
	rt := &runtime{}
	root := &cobra.Command{
		Use:               "ecfctl",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Cliente e-CF de la DGII",
		Long:              "Firma comprobantes fiscales electrónicos y los envía, consulta y representa ante la DGII",
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rt.applyFlags(cfg)
			rt.cfg = cfg
			rt.log = logger.New(logger.Config{Env: "development", Level: cfg.App.LogLevel, Output: cmd.ErrOrStderr()})
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&rt.opts.certPath, "cert", "", "certificado del emisor (.p12 o .pem); por defecto ECF_CERT_PATH")
	f.StringVar(&rt.opts.keyPath, "key", "", "llave privada .pem si el certificado es PEM")
	f.StringVar(&rt.opts.password, "password", "", "contraseña del .p12")
	f.StringVar(&rt.opts.environment, "env", "", "ambiente DEV|TEST|PROD (TesteCF, CerteCF, eCF)")
	f.StringVar(&rt.opts.caPath, "ca", "", "CA adicional en PEM para el TLS del gateway")
	f.StringVar(&rt.opts.ecfURL, "ecf-url", "", "reemplaza la URL base de ecf.dgii.gov.do")
	f.StringVar(&rt.opts.fcURL, "fc-url", "", "reemplaza la URL base de fc.dgii.gov.do")
	f.StringVar(&rt.opts.statusURL, "status-url", "", "reemplaza el endpoint de estatus de servicios")
	f.StringVar(&rt.opts.inputEncoding, "input-encoding", "", "charset de los archivos de entrada (ej. iso-8859-1)")
	f.StringVar(&rt.opts.logLevel, "log-level", "", "trace, debug, info, warn, error")

	root.AddCommand(
		rt.certCmd(),
		rt.signCmd(),
		rt.securityCodeCmd(),
		rt.json2xmlCmd(),
		rt.pdfCmd(),
		rt.sendCmd(),
		rt.uploadCmd(),
		rt.statusCmd(),
		rt.trackCmd(),
		rt.inquiryCmd(),
		rt.directoryCmd(),
		rt.serviceStatusCmd(),
	)
	return root
}

// Execute punto de entrada de cmd/ecfctl.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (rt *runtime) applyFlags(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.ECF.CertPath, rt.opts.certPath)
	set(&cfg.ECF.CertKeyPath, rt.opts.keyPath)
	set(&cfg.ECF.CertPassword, rt.opts.password)
	set(&cfg.ECF.Environment, rt.opts.environment)
	set(&cfg.ECF.BaseURL, rt.opts.ecfURL)
	set(&cfg.ECF.FCBaseURL, rt.opts.fcURL)
	set(&cfg.ECF.StatusURL, rt.opts.statusURL)
	set(&cfg.App.LogLevel, rt.opts.logLevel)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (rt *runtime) credential() (*entity.Credential, error) {
	return dgii.LoadCredential(rt.cfg.ECF.CertPath, rt.cfg.ECF.CertKeyPath, rt.cfg.ECF.CertPassword)
}

func (rt *runtime) endpoints(env entity.Environment) dgii.Endpoints {
	return dgii.EndpointsFor(env).WithOverrides(rt.cfg.ECF.BaseURL, rt.cfg.ECF.FCBaseURL, rt.cfg.ECF.StatusURL)
}

// service arma el servicio e-CF. Con authenticate abre la sesión antes de retornarlo.
func (rt *runtime) service(ctx context.Context, authenticate bool) (*ecf.Service, error) {
	cred, err := rt.credential()
	if err != nil {
		return nil, err
	}
	env, err := entity.ParseEnvironment(rt.cfg.ECF.Environment)
	if err != nil {
		return nil, err
	}
	opts := []dgii.Option{
		dgii.WithEndpoints(rt.endpoints(env)),
		dgii.WithTimeout(rt.cfg.ECF.Timeout),
		dgii.WithLogger(rt.log.Component("dgii")),
	}
	if rt.opts.caPath != "" {
		pool, err := loadCAs(rt.opts.caPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dgii.WithRootCAs(pool))
	}
	client := dgii.NewClient(cred, env, opts...)
	svc := ecf.NewService(client, signer.NewDigitalSignatureService(cred), cred, env,
		ecf.WithLogger(rt.log.Component("ecf")))
	if authenticate {
		if _, err := svc.Authenticate(ctx, ""); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func loadCAs(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer CA: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%s no contiene certificados PEM", path)
	}
	return pool, nil
}

// readInput lee un archivo ("-" es stdin) y lo convierte a UTF-8 según --input-encoding.
func (rt *runtime) readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return pkgecf.DecodeToUTF8(data, rt.opts.inputEncoding)
}

// writeOutput escribe en el archivo indicado o en stdout si está vacío.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
