package entity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

func TestParseENCF(t *testing.T) {
	e, err := entity.ParseENCF(" e310005012345 ")
	require.NoError(t, err)
	assert.Equal(t, entity.ENCF("E310005012345"), e)
	assert.Equal(t, entity.DocTypeCreditoFiscal, e.Type())
	assert.Equal(t, "0005012345", e.Sequence())
	assert.Equal(t, entity.RootECF, e.Type().RootElement())

	summary, err := entity.ParseENCF("E320005000001")
	require.NoError(t, err)
	assert.True(t, summary.Type().IsSummary())
	assert.Equal(t, entity.RootRFCE, summary.Type().RootElement())
}

func TestParseENCF_Invalidos(t *testing.T) {
	for _, in := range []string{"", "B0100000001", "E31000501234", "E3100050123X5", "E990005012345"} {
		_, err := entity.ParseENCF(in)
		assert.Error(t, err, "entrada %q", in)
	}
}

func TestDocumentEnvelope_FileName(t *testing.T) {
	env := entity.DocumentEnvelope{IssuerRNC: "131880681", ENCF: "E310005012345"}
	assert.Equal(t, "131880681E310005012345.xml", env.FileName())
}

func TestParseTrackStatus(t *testing.T) {
	cases := map[string]entity.TrackStatus{
		"Aceptado":                 entity.StatusAccepted,
		"Rechazado":                entity.StatusRejected,
		"Aceptado Condicional":     entity.StatusConditionalAccepted,
		"En Proceso":               entity.StatusInProcess,
		"  aceptado   condicional": entity.StatusConditionalAccepted,
	}
	for label, want := range cases {
		got, err := entity.ParseTrackStatus(label)
		require.NoError(t, err, label)
		assert.Equal(t, want, got, label)
	}

	_, err := entity.ParseTrackStatus("Anulado")
	var unknown *entity.ErrUnknownStatus
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Anulado", unknown.Label)
}

func TestTrackStatus_Transiciones(t *testing.T) {
	assert.True(t, entity.StatusInProcess.CanTransitionTo(entity.StatusAccepted))
	assert.True(t, entity.StatusInProcess.CanTransitionTo(entity.StatusRejected))
	assert.True(t, entity.StatusAccepted.CanTransitionTo(entity.StatusAccepted))
	assert.False(t, entity.StatusAccepted.CanTransitionTo(entity.StatusRejected))
	assert.False(t, entity.StatusRejected.CanTransitionTo(entity.StatusInProcess))
	assert.False(t, entity.StatusInProcess.CanTransitionTo("OTRO"))
	assert.True(t, entity.StatusRejected.Terminal())
	assert.False(t, entity.StatusInProcess.Terminal())
}

func TestSession(t *testing.T) {
	var nilSession *entity.Session
	assert.False(t, nilSession.Valid())
	assert.False(t, (&entity.Session{}).Valid())

	now := time.Now()
	s := &entity.Session{Token: "abc", ExpiresAt: now.Add(time.Hour)}
	assert.True(t, s.Valid())
	assert.False(t, s.ExpiredAt(now))
	assert.True(t, s.ExpiredAt(now.Add(2*time.Hour)))
	assert.Equal(t, "Bearer abc", s.AuthorizationHeader())
}

func TestParseEnvironment(t *testing.T) {
	env, err := entity.ParseEnvironment("CerteCF")
	require.NoError(t, err)
	assert.Equal(t, entity.EnvironmentTest, env)
	assert.Equal(t, "certecf", env.PathSegment())
	assert.Equal(t, "testecf", entity.EnvironmentDev.PathSegment())

	_, err = entity.ParseEnvironment("qa")
	assert.Error(t, err)
}

func TestSummaryInquiryResult_MatchesSubmission(t *testing.T) {
	r := &entity.SummaryInquiryResult{SecurityCode: "A1b2C3", TotalAmount: decimal.RequireFromString("1180.00")}
	assert.True(t, r.MatchesSubmission("A1b2C3", decimal.RequireFromString("1180")))
	assert.False(t, r.MatchesSubmission("zzzzzz", decimal.RequireFromString("1180")))
}

func TestCredential_Usable(t *testing.T) {
	var c *entity.Credential
	assert.False(t, c.Usable())
	assert.False(t, (&entity.Credential{}).Usable())
	assert.Empty(t, (&entity.Credential{}).TLSCertificate().Certificate)
}
