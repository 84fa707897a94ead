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

// Package router takes a validated record and writes it to the right
// place: the primary table when VALID, the quarantine table otherwise —
// guarded by a safety brake that fails the whole run closed if the
// primary table has grown past its configured size.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kraklabs/achesucatas/pkg/model"
)

// ErrCapacityExceeded is returned when the primary table has reached
// MaxPrimaryRows; the caller must treat the run as FAILED.
var ErrCapacityExceeded = errors.New("capacity_exceeded: primary table row count exceeds configured maximum")

// Repository is the persistence boundary the orchestrator writes through.
type Repository interface {
	UpsertValid(ctx context.Context, rec model.AuctionRecord) error
	InsertQuarantine(ctx context.Context, rej model.RejectionRecord) error
	PrimaryRowCount(ctx context.Context) (int, error)
	Exists(ctx context.Context, idInterno string) (bool, error)
}

// Querier is the subset of *pgxpool.Pool / *sqlx.DB the repository needs,
// kept narrow so tests can fake it without pulling in a real database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Row is the narrow subset of pgx.Row/sqlx.Row the repository scans.
type Row interface {
	Scan(dest ...any) error
}

// PostgresRepository implements Repository against the primary/quarantine
// tables described in the external interface contract.
type PostgresRepository struct {
	db             Querier
	maxPrimaryRows int
}

func NewPostgresRepository(db Querier, maxPrimaryRows int) *PostgresRepository {
	if maxPrimaryRows <= 0 {
		maxPrimaryRows = 10000
	}
	return &PostgresRepository{db: db, maxPrimaryRows: maxPrimaryRows}
}

func (r *PostgresRepository) PrimaryRowCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM auction_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count primary rows: %w", err)
	}
	return count, nil
}

// Exists reports whether id_interno already has a row in the primary
// table, used by the orchestrator to honor editais_skip_existe in
// INCREMENTAL mode.
func (r *PostgresRepository) Exists(ctx context.Context, idInterno string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM auction_records WHERE id_interno = $1)`, idInterno).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existence %s: %w", idInterno, err)
	}
	return exists, nil
}

// UpsertValid inserts rec or updates the existing row for its id_interno,
// preserving pdf_hash and storage_path when the incoming values are null
// (non-destructive upsert) — so a later pass without a PDF never erases
// provenance recorded by an earlier one.
func (r *PostgresRepository) UpsertValid(ctx context.Context, rec model.AuctionRecord) error {
	count, err := r.PrimaryRowCount(ctx)
	if err != nil {
		return err
	}
	if count >= r.maxPrimaryRows {
		return ErrCapacityExceeded
	}

	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	const query = `
INSERT INTO auction_records (
	id_interno, source_external_id, source_name, municipio, uf, ibge_code, lat, lon,
	data_publicacao, data_atualizacao, data_leilao, titulo, descricao, orgao, n_edital,
	objeto_resumido, tags, valor_estimado, quantidade_itens, tipo_leilao, modalidade,
	nome_leiloeiro, pncp_url, source_url, leiloeiro_url, storage_path, pdf_hash, versao_auditor,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
	$20, $21, $22, $23, $24, $25, $26, $27, $28, now(), now()
)
ON CONFLICT (id_interno) DO UPDATE SET
	source_external_id = EXCLUDED.source_external_id,
	municipio = EXCLUDED.municipio,
	uf = EXCLUDED.uf,
	ibge_code = EXCLUDED.ibge_code,
	lat = EXCLUDED.lat,
	lon = EXCLUDED.lon,
	data_publicacao = EXCLUDED.data_publicacao,
	data_atualizacao = EXCLUDED.data_atualizacao,
	data_leilao = EXCLUDED.data_leilao,
	titulo = EXCLUDED.titulo,
	descricao = EXCLUDED.descricao,
	orgao = EXCLUDED.orgao,
	n_edital = EXCLUDED.n_edital,
	objeto_resumido = EXCLUDED.objeto_resumido,
	tags = EXCLUDED.tags,
	valor_estimado = EXCLUDED.valor_estimado,
	quantidade_itens = EXCLUDED.quantidade_itens,
	tipo_leilao = EXCLUDED.tipo_leilao,
	modalidade = EXCLUDED.modalidade,
	nome_leiloeiro = EXCLUDED.nome_leiloeiro,
	pncp_url = EXCLUDED.pncp_url,
	source_url = EXCLUDED.source_url,
	leiloeiro_url = EXCLUDED.leiloeiro_url,
	storage_path = COALESCE(EXCLUDED.storage_path, auction_records.storage_path),
	pdf_hash = COALESCE(EXCLUDED.pdf_hash, auction_records.pdf_hash),
	versao_auditor = EXCLUDED.versao_auditor,
	updated_at = now()
`
	_, err = r.db.Exec(ctx, query,
		rec.IDInterno, rec.SourceExternalID, rec.SourceName, rec.Municipio, rec.UF, rec.IBGECode, rec.Lat, rec.Lon,
		rec.DataPublicacao, rec.DataAtualizacao, rec.DataLeilao, rec.Titulo, rec.Descricao, rec.Orgao, rec.NEdital,
		rec.ObjetoResumido, tags, rec.ValorEstimado, rec.QuantidadeItens, rec.TipoLeilao, rec.Modalidade,
		rec.NomeLeiloeiro, rec.PNCPUrl, rec.SourceUrl, rec.LeiloeiroUrl, rec.StoragePath, rec.PDFHash, rec.VersaoAuditor,
	)
	if err != nil {
		return fmt.Errorf("upsert auction_records %s: %w", rec.IDInterno, err)
	}
	return nil
}

// InsertQuarantine upserts on (run_id, id_interno) so a candidate that
// fails validation twice in the same run (re-fetched, re-resolved) does
// not produce duplicate quarantine rows.
func (r *PostgresRepository) InsertQuarantine(ctx context.Context, rej model.RejectionRecord) error {
	errs, err := json.Marshal(rej.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	raw, err := json.Marshal(rej.RawRecord)
	if err != nil {
		return fmt.Errorf("marshal raw_record: %w", err)
	}
	normalized, err := json.Marshal(rej.NormalizedRecord)
	if err != nil {
		return fmt.Errorf("marshal normalized_record: %w", err)
	}

	const query = `
INSERT INTO quarantine_records (run_id, id_interno, status, errors, raw_record, normalized_record, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (run_id, id_interno) DO UPDATE SET
	status = EXCLUDED.status,
	errors = EXCLUDED.errors,
	raw_record = EXCLUDED.raw_record,
	normalized_record = EXCLUDED.normalized_record
`
	_, err = r.db.Exec(ctx, query, rej.RunID, rej.IDInterno, rej.Status, errs, raw, normalized)
	if err != nil {
		return fmt.Errorf("upsert quarantine_records %s/%s: %w", rej.RunID, rej.IDInterno, err)
	}
	return nil
}
