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

package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kraklabs/achesucatas/pkg/model"
)

// Pricing is the per-token cost table for a given model, USD per 1M
// tokens — configured at startup, not hardcoded, since prices move.
type Pricing struct {
	PriceInputPerMillion  float64
	PriceOutputPerMillion float64
}

// OpenAIEnricher sends a compact prompt (titulo, first 2k chars of
// descricao, PDF head) and merges back commercial_title, summary,
// vehicle_list, auctioneer_url wherever the cascade left the field empty.
type OpenAIEnricher struct {
	client  *openai.Client
	model   string
	pricing Pricing
}

func NewOpenAIEnricher(apiKey, modelName string, pricing Pricing) *OpenAIEnricher {
	return &OpenAIEnricher{
		client:  openai.NewClient(apiKey),
		model:   modelName,
		pricing: pricing,
	}
}

// newOpenAIEnricherWithClient builds an enricher around an already
// constructed client, letting tests point it at an httptest server via
// openai.Config.BaseURL instead of the real API.
func newOpenAIEnricherWithClient(client *openai.Client, modelName string, pricing Pricing) *OpenAIEnricher {
	return &OpenAIEnricher{client: client, model: modelName, pricing: pricing}
}

type enrichReply struct {
	CommercialTitle string   `json:"commercial_title"`
	Summary         string   `json:"summary"`
	VehicleList     []string `json:"vehicle_list"`
	AuctioneerURL   string   `json:"auctioneer_url"`
}

func (e *OpenAIEnricher) Enrich(ctx context.Context, rec model.AuctionRecord, pdfHead string) (model.AuctionRecord, Usage, error) {
	descricao := rec.Descricao
	if len(descricao) > 2000 {
		descricao = descricao[:2000]
	}

	prompt := fmt.Sprintf(
		"Titulo: %s\nDescricao: %s\nPDF (inicio): %s\n\nResponda em JSON com os campos commercial_title, summary, vehicle_list, auctioneer_url.",
		rec.Titulo, descricao, pdfHead)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return rec, Usage{}, fmt.Errorf("openai chat completion: %w", err)
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	usage.Cost = float64(usage.InputTokens)/1e6*e.pricing.PriceInputPerMillion +
		float64(usage.OutputTokens)/1e6*e.pricing.PriceOutputPerMillion

	if len(resp.Choices) == 0 {
		return rec, usage, fmt.Errorf("openai returned no choices")
	}

	var reply enrichReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return rec, usage, fmt.Errorf("decode enrichment reply: %w", err)
	}

	merged := rec
	if merged.Titulo == "" {
		merged.Titulo = reply.CommercialTitle
	}
	if merged.Descricao == "" {
		merged.Descricao = reply.Summary
	}
	if len(merged.Tags) == 0 && len(reply.VehicleList) > 0 {
		merged.Tags = reply.VehicleList
	}
	if merged.LeiloeiroUrl == nil && strings.TrimSpace(reply.AuctioneerURL) != "" {
		merged.LeiloeiroUrl = &reply.AuctioneerURL
	}

	return merged, usage, nil
}
