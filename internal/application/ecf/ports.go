package ecf

import (
	"context"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// Gateway puerto de salida hacia el gateway e-CF de la DGII. La implementación concreta es
// dgii.Client; cada llamada recibe la sesión explícitamente.
type Gateway interface {
	Seed(ctx context.Context, authURL string) ([]byte, error)
	ValidateSeed(ctx context.Context, authURL string, signedSeed []byte) (*entity.Session, error)

	SendDocument(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.SubmissionReceipt, error)
	SendSummary(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.SummaryReceipt, error)
	SendCommercialApproval(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.ApprovalReceipt, error)
	VoidSequences(ctx context.Context, sess *entity.Session, signedXML []byte, fileName string) (*entity.VoidReceipt, error)

	TrackResult(ctx context.Context, sess *entity.Session, trackID string) (*entity.TrackingRecord, error)
	TrackIDs(ctx context.Context, sess *entity.Session, rnc, encf string) ([]entity.TrackingRecord, error)
	Inquiry(ctx context.Context, sess *entity.Session, rnc, encf, buyerRNC, securityCode string) (*entity.SummaryInquiryResult, error)

	Directory(ctx context.Context, sess *entity.Session, rnc string) ([]entity.DirectoryEntry, error)
	DirectoryList(ctx context.Context, sess *entity.Session) ([]entity.DirectoryEntry, error)
	ServiceStatus(ctx context.Context) ([]entity.ServiceStatus, error)
}
