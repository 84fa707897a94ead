package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/achesucatas/pkg/extract"
	"github.com/kraklabs/achesucatas/pkg/fetch"
	"github.com/kraklabs/achesucatas/pkg/model"
	"github.com/kraklabs/achesucatas/pkg/taxonomy"
)

func newTaxonomyForTest(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.LoadTaxonomy("../../configs/taxonomy.yaml")
	require.NoError(t, err)
	return tax
}

// stableID must be deterministic across calls for the same
// (source_name, source_external_id) pair — this is the cascade's
// contribution to idempotence (spec §8 property #3).
func TestStableIDIsDeterministic(t *testing.T) {
	id1 := stableID(model.SourcePNCP, "PNCP-2026-000123")
	id2 := stableID(model.SourcePNCP, "PNCP-2026-000123")
	assert.Equal(t, id1, id2)
	assert.Regexp(t, `^ID_[0-9A-F]{12}$`, id1)
}

func TestStableIDDiffersByExternalID(t *testing.T) {
	id1 := stableID(model.SourcePNCP, "PNCP-2026-000123")
	id2 := stableID(model.SourcePNCP, "PNCP-2026-000124")
	assert.NotEqual(t, id1, id2)
}

// Round-trip scenario (spec §8 property #4): resolving a PNCP-shaped JSON
// candidate yields a record whose source_external_id equals the item's
// control number.
func TestResolveRoundTripsSourceExternalID(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindJSON, Fields: map[string]any{
			"municipio":            "Fortaleza",
			"uf":                   "CE",
			"dataAberturaProposta": "2026-02-15T10:00:00",
			"data_publicacao":      "09-02-2026",
			"data_atualizacao":     "10-02-2026",
			"objeto":               "Leilão de veículos sucateados",
			"orgao":                "Detran CE",
			"valorTotalEstimado":   50000.00,
			"pncp_url":             "https://pncp.gov.br/x",
		}},
	}
	rec := r.Resolve(model.SourcePNCP, "PNCP-2026-000123", candidates)

	assert.Equal(t, "PNCP-2026-000123", rec.SourceExternalID)
	assert.Equal(t, "15-02-2026", *rec.DataLeilao)
	assert.Equal(t, "Fortaleza", rec.Municipio)
	assert.Equal(t, "CE", rec.UF)
	require.NotNil(t, rec.ValorEstimado)
	assert.InDelta(t, 50000.00, *rec.ValorEstimado, 0.001)
}

func TestResolveDataLeilaoFallsBackToPDFContextualDate(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindPDF, Fields: map[string]any{
			"descricao": "Edital de leilão.\nA sessão pública de abertura ocorrerá em 20/03/2026 às 10h.",
		}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-1", candidates)
	require.NotNil(t, rec.DataLeilao)
	assert.Equal(t, "20-03-2026", *rec.DataLeilao)
}

func TestResolveTipoLeilaoHibridoWhenBothKeywordsPresent(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindPDF, Fields: map[string]any{
			"descricao": "Leilão eletrônico e presencial simultâneo.",
		}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-2", candidates)
	require.NotNil(t, rec.TipoLeilao)
	assert.Equal(t, model.TipoHibrido, *rec.TipoLeilao)
}

func TestResolveTipoLeilaoNilWhenNoKeywordEvidence(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindPDF, Fields: map[string]any{"descricao": "Edital padrão sem menção de modalidade."}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-3", candidates)
	assert.Nil(t, rec.TipoLeilao)
}

// Scenario D (spec §8): a lone uppercase word containing a dot
// ("ED.COMEMORA") must never be promoted to leiloeiro_url, whether it
// shows up loose in the PDF text (never URL-shaped, so never even
// becomes a candidate) or as the entire informacoes_complementares
// field, which is checked as a raw value when it has no embedded
// URL-shaped substring.
func TestResolveLeiloeiroURLRejectsLoneUppercaseWord(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindPDF, Fields: map[string]any{"descricao": "Edital ED.COMEMORA de leilão judicial."}},
		{Kind: fetch.KindJSON, Fields: map[string]any{"informacoes_complementares": "ED.COMEMORA"}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-4", candidates)
	assert.Nil(t, rec.LeiloeiroUrl)
}

// With no PDF-text URL at all, a bare acronym in informacoes_complementares
// must still be rejected rather than normalized into a fake URL.
func TestResolveLeiloeiroURLRejectsLoneUppercaseWordFromJSONFieldAlone(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindJSON, Fields: map[string]any{"informacoes_complementares": "ED.COMEMORA"}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-4B", candidates)
	assert.Nil(t, rec.LeiloeiroUrl)
}

// A bare domain with no scheme or "www." prefix in informacoes_complementares
// is recovered: it never matches urlPattern, so it falls through as the raw
// field value, which NormalizeURL can still promote to a URL.
func TestResolveLeiloeiroURLAcceptsBareDomainFromJSONField(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindJSON, Fields: map[string]any{"informacoes_complementares": "sodresantoro.com.br"}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-4C", candidates)
	require.NotNil(t, rec.LeiloeiroUrl)
	assert.Equal(t, "https://sodresantoro.com.br", *rec.LeiloeiroUrl)
}

func TestResolveLeiloeiroURLRejectsEmailProviderDomain(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindPDF, Fields: map[string]any{"descricao": "Contato: leiloeiro@gmail.com https://gmail.com"}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-5", candidates)
	assert.Nil(t, rec.LeiloeiroUrl)
}

func TestResolveLeiloeiroURLAcceptsGenuineURL(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindPDF, Fields: map[string]any{"descricao": "Mais informações em www.sodresantoro.com.br/lote1"}},
	}
	rec := r.Resolve(model.SourceLeiloeiro, "EXT-6", candidates)
	require.NotNil(t, rec.LeiloeiroUrl)
	assert.Equal(t, "https://www.sodresantoro.com.br/lote1", *rec.LeiloeiroUrl)
}

func TestResolveTagsClassifiesAgainstTaxonomy(t *testing.T) {
	r := NewResolver(newTaxonomyForTest(t))
	candidates := []Candidate{
		{Kind: fetch.KindJSON, Fields: map[string]any{
			"objeto": "Leilão de caminhões e motos sucateados",
		}},
	}
	rec := r.Resolve(model.SourcePNCP, "EXT-7", candidates)
	assert.Contains(t, rec.Tags, "CAMINHAO")
	assert.Contains(t, rec.Tags, "MOTO")
	assert.Contains(t, rec.Tags, "SUCATA")
}

func TestNormalizeURLPrependsSchemeAndRejectsBareWord(t *testing.T) {
	normalized, ok := NormalizeURL("www.example.com.br/path")
	require.True(t, ok)
	assert.Equal(t, "https://www.example.com.br/path", normalized)

	_, ok = NormalizeURL("COMEMORA")
	assert.False(t, ok)
}

func TestNormalizeURLTrimsTrailingPunctuation(t *testing.T) {
	normalized, ok := NormalizeURL("https://example.com.br/path),")
	require.True(t, ok)
	assert.Equal(t, "https://example.com.br/path", normalized)
}

func TestFromPartialsAdaptsExtractorOutput(t *testing.T) {
	partials := []extract.PartialRecord{
		{SourceKind: fetch.KindJSON, Fields: map[string]any{"municipio": "Recife"}},
	}
	candidates := FromPartials(partials)
	require.Len(t, candidates, 1)
	assert.Equal(t, fetch.KindJSON, candidates[0].Kind)
	assert.Equal(t, "Recife", candidates[0].Fields["municipio"])
}
