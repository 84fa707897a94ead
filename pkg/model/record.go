// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model holds the canonical data contract that every pipeline
// component reads and writes: AuctionRecord and the records that
// accompany it through a run (rejections, quality reports, run history,
// pipeline events).
package model

import "time"

// SourceName enumerates the connectors this pipeline supports.
type SourceName string

const (
	SourcePNCP       SourceName = "pncp"
	SourceLeiloeiro  SourceName = "leiloeiro"
	SourceSourceless SourceName = "desconhecida"
)

// TipoLeilao enumerates the auction modality. Zero value means "unknown",
// never inferred — see Cascade field rule for tipo_leilao.
type TipoLeilao string

const (
	TipoEletronico TipoLeilao = "ELETRONICO"
	TipoPresencial TipoLeilao = "PRESENCIAL"
	TipoHibrido    TipoLeilao = "HIBRIDO"
)

// TagSentinel is stripped from every tag set during normalization.
const TagSentinel = "SEM CLASSIFICAÇÃO"

// UFCodes is the closed set of Brazilian state codes.
var UFCodes = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {},
	"ES": {}, "GO": {}, "MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {},
	"PB": {}, "PR": {}, "PE": {}, "PI": {}, "RJ": {}, "RN": {}, "RS": {},
	"RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// AuctionRecord is the canonical output of the pipeline. Every row in the
// primary table satisfies Status == VALID; anything else lives only in
// the quarantine table (see pkg/router).
type AuctionRecord struct {
	// Identity
	IDInterno        string     `json:"id_interno" db:"id_interno"`
	SourceExternalID string     `json:"source_external_id" db:"source_external_id"`
	SourceName       SourceName `json:"source_name" db:"source_name"`

	// Geography
	Municipio string   `json:"municipio" db:"municipio"`
	UF        string   `json:"uf" db:"uf"`
	IBGECode  *int     `json:"ibge_code,omitempty" db:"ibge_code"`
	Lat       *float64 `json:"lat,omitempty" db:"lat"`
	Lon       *float64 `json:"lon,omitempty" db:"lon"`

	// Temporal — all dates are "DD-MM-YYYY" strings, datetimes ISO-8601 with offset.
	DataPublicacao  string  `json:"data_publicacao" db:"data_publicacao"`
	DataAtualizacao string  `json:"data_atualizacao" db:"data_atualizacao"`
	DataLeilao      *string `json:"data_leilao,omitempty" db:"data_leilao"`

	// Content
	Titulo          string   `json:"titulo" db:"titulo"`
	Descricao       string   `json:"descricao" db:"descricao"`
	Orgao           string   `json:"orgao" db:"orgao"`
	NEdital         *string  `json:"n_edital,omitempty" db:"n_edital"`
	ObjetoResumido  string   `json:"objeto_resumido" db:"objeto_resumido"`
	Tags            []string `json:"tags" db:"tags"`

	// Commercial
	ValorEstimado   *float64    `json:"valor_estimado,omitempty" db:"valor_estimado"`
	QuantidadeItens *int        `json:"quantidade_itens,omitempty" db:"quantidade_itens"`
	TipoLeilao      *TipoLeilao `json:"tipo_leilao,omitempty" db:"tipo_leilao"`
	Modalidade      string      `json:"modalidade,omitempty" db:"modalidade"`
	NomeLeiloeiro   *string     `json:"nome_leiloeiro,omitempty" db:"nome_leiloeiro"`

	// Links
	PNCPUrl      string  `json:"pncp_url" db:"pncp_url"`
	SourceUrl    string  `json:"source_url,omitempty" db:"source_url"`
	LeiloeiroUrl *string `json:"leiloeiro_url,omitempty" db:"leiloeiro_url"`

	// Provenance
	StoragePath   *string `json:"storage_path,omitempty" db:"storage_path"`
	PDFHash       *string `json:"pdf_hash,omitempty" db:"pdf_hash"`
	VersaoAuditor string  `json:"versao_auditor" db:"versao_auditor"`

	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Status is the outcome of validation (spec §4.7 decision table).
type Status string

const (
	StatusValid       Status = "VALID"
	StatusDraft       Status = "DRAFT"
	StatusNotSellable Status = "NOT_SELLABLE"
	StatusRejected    Status = "REJECTED"
)

// ErrorCode enumerates the closed set of structured validation errors.
type ErrorCode string

const (
	ErrMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
	ErrInvalidDateFormat    ErrorCode = "INVALID_DATE_FORMAT"
	ErrInvalidURL           ErrorCode = "INVALID_URL"
	ErrRejectedCategory     ErrorCode = "REJECTED_CATEGORY"
	ErrExtractionError      ErrorCode = "EXTRACTION_ERROR"
	ErrURLNormalized        ErrorCode = "URL_NORMALIZED"
	ErrTagsNormalized       ErrorCode = "TAGS_NORMALIZED"
	ErrUnknown              ErrorCode = "UNKNOWN"
)

// ValidationError carries {code, field, message} as spec §4.7 requires.
type ValidationError struct {
	Code    ErrorCode `json:"code"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
}

// RejectionRecord is a quarantine entry (spec §3).
type RejectionRecord struct {
	RunID            string            `json:"run_id" db:"run_id"`
	IDInterno        string            `json:"id_interno" db:"id_interno"`
	Status           Status            `json:"status" db:"status"`
	Errors           []ValidationError `json:"errors" db:"errors"`
	RawRecord        map[string]any    `json:"raw_record" db:"raw_record"`
	NormalizedRecord map[string]any    `json:"normalized_record" db:"normalized_record"`
	CreatedAt        time.Time         `json:"created_at,omitempty" db:"created_at"`
}

// ReasonCount is one entry of QualityReport.TopReasonCodes.
type ReasonCount struct {
	Code  ErrorCode `json:"code"`
	Count int       `json:"count"`
}

// QualityReport summarizes one run (spec §3).
type QualityReport struct {
	RunID             string        `json:"run_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	DurationSeconds   float64       `json:"duration_seconds"`
	TotalProcessados  int           `json:"total_processados"`
	TotalValidos      int           `json:"total_validos"`
	DraftCount        int           `json:"draft_count"`
	NotSellableCount  int           `json:"not_sellable_count"`
	RejectedCount     int           `json:"rejected_count"`
	TotalQuarentena   int           `json:"total_quarentena"`
	TaxaValidosPct    float64       `json:"taxa_validos_percent"`
	TaxaQuarentenaPct float64       `json:"taxa_quarentena_percent"`
	TopReasonCodes    []ReasonCount `json:"top_reason_codes"`
	CostTotal         float64       `json:"cost_total"`
	CostOpenAI        float64       `json:"cost_openai"`
	NumPDFs           int           `json:"num_pdfs"`
	CustoPorMil       float64       `json:"custo_por_mil"`
}

// Rates computes taxa_validos_percent / taxa_quarentena_percent, both 0
// when TotalProcessados is 0 (spec §8, testable property #6).
func (q *QualityReport) Rates() {
	if q.TotalProcessados == 0 {
		q.TaxaValidosPct = 0
		q.TaxaQuarentenaPct = 0
		return
	}
	total := float64(q.TotalProcessados)
	q.TaxaValidosPct = float64(q.TotalValidos) / total * 100
	q.TaxaQuarentenaPct = float64(q.TotalQuarentena) / total * 100
}

// RunStatus is the lifecycle status of a RunExecution.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// RunMode selects whether existing ids are skipped (INCREMENTAL) or
// reprocessed (FULL, via --force).
type RunMode string

const (
	ModeIncremental RunMode = "INCREMENTAL"
	ModeFull        RunMode = "FULL"
)

// CascadeStats are the candidate-level counters tracked per run.
type CascadeStats struct {
	Encontrados     int `json:"editais_encontrados"`
	Novos           int `json:"editais_novos"`
	SkipExiste      int `json:"editais_skip_existe"`
	Duplicados      int `json:"editais_duplicados"`
	DownloadsOK     int `json:"downloads_ok"`
	DownloadsFalhou int `json:"downloads_falhou"`
}

// RunExecution is the persisted history of one orchestrator run (spec §3).
type RunExecution struct {
	RunID          string         `json:"run_id" db:"run_id"`
	ExecutionStart time.Time      `json:"execution_start" db:"execution_start"`
	ExecutionEnd   *time.Time     `json:"execution_end,omitempty" db:"execution_end"`
	Status         RunStatus      `json:"status" db:"status"`
	Mode           RunMode        `json:"mode" db:"mode"`
	VersaoMiner    string         `json:"versao_miner" db:"versao_miner"`
	Cascade        CascadeStats   `json:"cascade_stats" db:"-"`
	Quality        QualityReport  `json:"quality_report" db:"-"`
	CostTotal      float64        `json:"cost_total" db:"cost_total"`
	CostOpenAI     float64        `json:"cost_openai" db:"cost_openai"`
	FailureReason  string         `json:"failure_reason,omitempty" db:"failure_reason"`
}

// PipelineEtapa is the closed set of pipeline stages an event can belong to.
type PipelineEtapa string

const (
	EtapaInicio      PipelineEtapa = "inicio"
	EtapaBusca       PipelineEtapa = "busca"
	EtapaColeta      PipelineEtapa = "coleta"
	EtapaPDFDownload PipelineEtapa = "pdf_download"
	EtapaPDFParse    PipelineEtapa = "pdf_parse"
	EtapaExtract     PipelineEtapa = "extract"
	EtapaEnrich      PipelineEtapa = "enrich"
	EtapaValidate    PipelineEtapa = "validate"
	EtapaUpsert      PipelineEtapa = "upsert"
	EtapaQuarantine  PipelineEtapa = "quarantine"
	EtapaFim         PipelineEtapa = "fim"
)

// PipelineLevel is the severity of a PipelineEvent.
type PipelineLevel string

const (
	LevelDebug   PipelineLevel = "debug"
	LevelInfo    PipelineLevel = "info"
	LevelWarning PipelineLevel = "warning"
	LevelError   PipelineLevel = "error"
)

// PipelineEvent is a free-form audit-log entry (spec §3).
type PipelineEvent struct {
	RunID     string         `json:"run_id" db:"run_id"`
	Etapa     PipelineEtapa  `json:"etapa" db:"etapa"`
	Evento    string         `json:"evento" db:"evento"`
	Nivel     PipelineLevel  `json:"nivel" db:"nivel"`
	Mensagem  string         `json:"mensagem" db:"mensagem"`
	Dados     map[string]any `json:"dados,omitempty" db:"dados"`
	TimingMs  *float64       `json:"timing_ms,omitempty" db:"timing_ms"`
	Counter   *int           `json:"counter,omitempty" db:"counter"`
	CreatedAt time.Time      `json:"created_at,omitempty" db:"created_at"`
}
