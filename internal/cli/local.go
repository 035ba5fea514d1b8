package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/transformer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/pdf"
)

func (rt *runtime) certCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cert",
		Short: "Diagnostica el certificado del emisor",
		Long:  "Carga el certificado (.p12 o PEM) con la contraseña configurada y muestra sujeto, emisor y vigencia",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := rt.credential()
			if err != nil {
				return err
			}
			if !cred.Usable() {
				return fmt.Errorf("no hay certificado configurado (--cert o ECF_CERT_PATH)")
			}
			c := cred.Certificate
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sujeto:     %s\n", c.Subject.String())
			fmt.Fprintf(out, "Emisor:     %s\n", c.Issuer.String())
			fmt.Fprintf(out, "Serie:      %s\n", c.SerialNumber.String())
			fmt.Fprintf(out, "Válido:     %s a %s\n", c.NotBefore.Format(time.RFC3339), c.NotAfter.Format(time.RFC3339))
			fmt.Fprintf(out, "Intermedios: %d\n", len(cred.Chain))
			if time.Now().After(c.NotAfter) {
				return fmt.Errorf("el certificado venció el %s", c.NotAfter.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func (rt *runtime) signCmd() *cobra.Command {
	var root, output string
	cmd := &cobra.Command{
		Use:   "sign <archivo.xml>",
		Short: "Firma un XML con el certificado del emisor",
		Long:  "Agrega la firma XMLDSig envuelta como último hijo de la raíz. Si no se indica --root se usa la raíz del documento",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := rt.service(cmd.Context(), false)
			if err != nil {
				return err
			}
			if root == "" {
				root = documentRoot(data)
			}
			signed, err := svc.Sign(data, root)
			if err != nil {
				return err
			}
			rt.log.Debug().Str("root", root).Int("bytes", len(signed)).Msg("documento firmado")
			return writeOutput(cmd, output, signed)
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "elemento raíz ("+entity.RootECF+", "+entity.RootRFCE+", "+entity.RootARECF+", "+entity.RootANECF+"...)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "archivo de salida (por defecto stdout)")
	return cmd
}

func (rt *runtime) securityCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "security-code <archivo-firmado.xml>",
		Short: "Muestra el código de seguridad de un e-CF firmado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(cmd, args[0])
			if err != nil {
				return err
			}
			code, err := signer.SecurityCode(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func (rt *runtime) json2xmlCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "json2xml <documento.json>",
		Short: "Convierte un comprobante en JSON a XML conservando el orden de los campos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := transformer.JSONBytesToXML(data)
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archivo de salida (por defecto stdout)")
	return cmd
}

func (rt *runtime) pdfCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pdf <archivo-firmado.xml>",
		Short: "Genera la representación impresa (PDF) de un e-CF firmado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output es requerido")
			}
			data, err := rt.readInput(cmd, args[0])
			if err != nil {
				return err
			}
			env, err := entity.ParseEnvironment(rt.cfg.ECF.Environment)
			if err != nil {
				return err
			}
			ep := rt.endpoints(env)
			out, err := pdf.NewMarotoPDFGenerator(ep.ECF, ep.FC).GenerateFromSignedXML(cmd.Context(), data)
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archivo PDF de salida")
	return cmd
}
