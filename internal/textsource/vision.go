package textsource

import (
	"context"
	"strings"
	"time"

	"github.com/davidmoltin/procurement-workflows/pkg/llm"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
)

const ocrSystemPrompt = `You transcribe scanned business documents such as invoices, proformas and receipts.
Return only the text visible in the image, preserving line breaks and the order of table rows.
Keep each line item on its own line with its quantity and prices. Do not summarize or add commentary.`

// VisionOCR recognizes text in images with a vision-capable LLM
type VisionOCR struct {
	client    llm.Client
	model     string
	maxTokens int
	metrics   *metrics.Metrics
}

// NewVisionOCR wraps an LLM client. An empty model uses the client default.
// m may be nil.
func NewVisionOCR(client llm.Client, model string, m *metrics.Metrics) *VisionOCR {
	return &VisionOCR{client: client, model: model, maxTokens: 4096, metrics: m}
}

// Recognize transcribes the image
func (v *VisionOCR) Recognize(ctx context.Context, mediaType string, data []byte) (string, error) {
	start := time.Now()
	resp, err := v.client.Chat(ctx, &llm.ChatRequest{
		Model:        v.model,
		MaxTokens:    v.maxTokens,
		SystemPrompt: ocrSystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Transcribe this document.",
			Images:  []llm.Image{{MediaType: mediaType, Data: data}},
		}},
	})
	if err != nil {
		v.metrics.RecordOCR("error", time.Since(start))
		return "", err
	}
	v.metrics.RecordOCR("success", time.Since(start))
	return strings.TrimSpace(resp.Content), nil
}
