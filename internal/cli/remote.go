package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/spf13/cobra"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	pkgecf "github.com/jhoicas/ecf-dgii/pkg/ecf"
)

func (rt *runtime) sendCmd() *cobra.Command {
	var rnc, encf string
	cmd := &cobra.Command{
		Use:   "send <archivo.xml>",
		Short: "Firma y envía un comprobante (e-CF o resumen RFCE)",
		Long:  "Autentica con la semilla, firma el documento y lo envía al endpoint que corresponde a su tipo. Sin --rnc/--encf se toman de RNCEmisor y eNCF del XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if rnc == "" {
				rnc = firstText(data, "RNCEmisor")
			}
			if encf == "" {
				encf = firstText(data, "eNCF")
			}
			svc, err := rt.service(cmd.Context(), true)
			if err != nil {
				return err
			}
			res, err := svc.Submit(cmd.Context(), entity.DocumentEnvelope{IssuerRNC: rnc, ENCF: entity.ENCF(encf), XML: data})
			if err != nil {
				return err
			}
			out := dto.SubmitResponse{
				ENCF:         string(res.Envelope.ENCF),
				FileName:     res.Envelope.FileName(),
				SecurityCode: res.Envelope.SecurityCode,
				Summary:      dto.FromSummaryReceipt(res.Summary),
			}
			if res.Receipt != nil {
				out.TrackID = res.Receipt.TrackID
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&rnc, "rnc", "", "RNC del emisor")
	cmd.Flags().StringVar(&encf, "encf", "", "e-NCF del documento")
	return cmd
}

func (rt *runtime) uploadCmd() *cobra.Command {
	var kind, fileName string
	cmd := &cobra.Command{
		Use:   "upload <archivo-firmado.xml>",
		Short: "Envía un XML ya firmado (e-CF, resumen, aprobación comercial o anulación)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if fileName == "" {
				fileName = filepath.Base(args[0])
			}
			svc, err := rt.service(cmd.Context(), true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			switch kind {
			case "ecf":
				r, err := svc.SendElectronicDocument(ctx, data, fileName)
				if err != nil {
					return err
				}
				return printJSON(cmd, dto.ReceiptResponse{TrackID: r.TrackID, Error: r.Error, Message: r.Message})
			case "rfce":
				r, err := svc.SendSummary(ctx, data, fileName)
				if err != nil {
					return err
				}
				return printJSON(cmd, dto.FromSummaryReceipt(r))
			case "arecf":
				r, err := svc.SendCommercialApproval(ctx, data, fileName)
				if err != nil {
					return err
				}
				return printJSON(cmd, dto.ApprovalResponse{Status: r.Status, Messages: r.Messages})
			case "anecf":
				r, err := svc.VoidSequences(ctx, data, fileName)
				if err != nil {
					return err
				}
				return printJSON(cmd, dto.VoidResponse{RNC: r.RNC, Code: r.Code, Name: r.Name, Messages: r.Messages})
			}
			return fmt.Errorf("--kind desconocido %q (ecf|rfce|arecf|anecf)", kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "ecf", "tipo de envío: ecf, rfce, arecf, anecf")
	cmd.Flags().StringVar(&fileName, "file-name", "", "nombre del archivo enviado (por defecto el del archivo local)")
	return cmd
}

func (rt *runtime) statusCmd() *cobra.Command {
	var (
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status <trackId>",
		Short: "Consulta el estado de un envío",
		Long:  "Con --wait consulta cada --interval hasta que el estado sea final (Aceptado, Aceptado Condicional o Rechazado)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := rt.service(ctx, true)
			if err != nil {
				return err
			}
			rec, err := svc.StatusByTrackID(ctx, args[0])
			if err != nil {
				return err
			}
			for wait && !rec.Status.Terminal() {
				rt.log.Info().Str("track_id", rec.TrackID).Str("estado", rec.Status.Label()).Msg("en espera")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(interval):
				}
				if rec, err = svc.Refresh(ctx, rec); err != nil {
					return err
				}
			}
			return printJSON(cmd, dto.FromTrackingRecord(*rec))
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "esperar un estado final")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "intervalo entre consultas con --wait")
	return cmd
}

func (rt *runtime) trackCmd() *cobra.Command {
	var rnc, encf string
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Lista los envíos registrados para un e-NCF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rnc == "" {
				rnc = rt.cfg.ECF.IssuerRNC
			}
			svc, err := rt.service(cmd.Context(), true)
			if err != nil {
				return err
			}
			recs, err := svc.StatusesByBusinessKey(cmd.Context(), rnc, encf)
			if err != nil {
				return err
			}
			out := make([]dto.TrackingResponse, 0, len(recs))
			for _, r := range recs {
				out = append(out, dto.FromTrackingRecord(r))
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&rnc, "rnc", "", "RNC del emisor (por defecto ECF_RNC_EMISOR)")
	cmd.Flags().StringVar(&encf, "encf", "", "e-NCF")
	_ = cmd.MarkFlagRequired("encf")
	return cmd
}

func (rt *runtime) inquiryCmd() *cobra.Command {
	var rnc, encf, buyer, code string
	cmd := &cobra.Command{
		Use:   "inquiry",
		Short: "Consulta un resumen de factura de consumo (RFCE)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rnc == "" {
				rnc = rt.cfg.ECF.IssuerRNC
			}
			svc, err := rt.service(cmd.Context(), true)
			if err != nil {
				return err
			}
			res, err := svc.InquirySummary(cmd.Context(), rnc, encf, buyer, code)
			if err != nil {
				return err
			}
			return printJSON(cmd, dto.FromInquiry(res))
		},
	}
	cmd.Flags().StringVar(&rnc, "rnc", "", "RNC del emisor (por defecto ECF_RNC_EMISOR)")
	cmd.Flags().StringVar(&encf, "encf", "", "e-NCF")
	cmd.Flags().StringVar(&buyer, "buyer", "", "RNC del comprador")
	cmd.Flags().StringVar(&code, "code", "", "código de seguridad")
	_ = cmd.MarkFlagRequired("encf")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func (rt *runtime) directoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directory [rnc]",
		Short: "Consulta el directorio de receptores electrónicos",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context(), true)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				entries, err := svc.CustomerDirectory(cmd.Context(), pkgecf.NormalizeTaxID(args[0]))
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			}
			entries, err := svc.ListDirectory(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
}

func (rt *runtime) serviceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "service-status",
		Short: "Estatus de los servicios de la DGII (no requiere autenticación)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context(), false)
			if err != nil {
				return err
			}
			st, err := svc.ServiceStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// documentRoot nombre local de la raíz del XML; vacío si no se puede leer.
func documentRoot(data []byte) string {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = pkgecf.CharsetReader
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		return ""
	}
	return doc.Root().Tag
}

// firstText texto del primer elemento con ese nombre.
func firstText(data []byte, tag string) string {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = pkgecf.CharsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return ""
	}
	if el := doc.FindElement("//" + tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}
