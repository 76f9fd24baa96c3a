// Package aiextract is the chat-model fallback for files no local strategy
// or trained file model can read. The text is sent in chunks of lines and
// the model answers with rows in source order.
//
// Example usage:
//
//	ai := aiextract.New(aiextract.NewOpenAIClient(key, ""), "gpt-4o", aiextract.NewMemoryCache(), logger)
//	sel := extraction.NewSelector(logger, extraction.WithAI(ai.Extract, 3, time.Second))
package aiextract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// chunkLines bounds how many source lines go into one request
const chunkLines = 60

// ErrNoText is returned for inputs that carry only binary content
var ErrNoText = errors.New("no text to extract from")

type reply struct {
	Rows []replyRow `json:"rows"`
}

type replyRow struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// Extractor turns raw file text into transactions with a chat model
type Extractor struct {
	client ChatClient
	model  string
	cache  Cache
	logger *slog.Logger
}

// New creates an extractor. cache may be nil.
func New(client ChatClient, model string, cache Cache, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &Extractor{client: client, model: model, cache: cache, logger: logger.With("system", "ai")}
}

// Extract satisfies extraction.AIExtractor.
func (e *Extractor) Extract(ctx context.Context, req extraction.AIRequest, progress extraction.ProgressFunc) ([]models.Transaction, error) {
	chunks := chunk(req.Text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %w: %s", extraction.ErrPermanent, ErrNoText, req.FileName)
	}

	var out []models.Transaction
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := e.extractChunk(ctx, req.Kind, c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d of %s: %w", i+1, len(chunks), req.FileName, err)
		}
		out = append(out, e.toTransactions(rows)...)
		if progress != nil {
			progress(i+1, len(chunks))
		}
	}

	e.logger.Info("ai extraction complete", "file", req.FileName, "chunks", len(chunks), "rows", len(out))
	return out, nil
}

func (e *Extractor) extractChunk(ctx context.Context, kind extraction.Kind, text string) ([]replyRow, error) {
	prompt := buildPrompt(kind, text)
	key := e.cacheKey(prompt)

	content, cached := "", false
	if e.cache != nil {
		content, cached = e.cache.Get(key)
	}
	if !cached {
		response, err := e.client.CreateChatCompletion(ctx, ChatCompletionRequest{
			Model:          e.model,
			Temperature:    0,
			ResponseFormat: &ResponseFormat{Type: "json_object"},
			Messages: []Message{
				{Role: "system", Content: "You extract tabular financial rows from raw text. Always respond with valid JSON."},
				{Role: "user", Content: prompt},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(response.Choices) == 0 {
			return nil, errors.New("no response from model")
		}
		content = response.Choices[0].Message.Content
	}

	var r reply
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if e.cache != nil && !cached {
		e.cache.Set(key, content)
	}
	return r.Rows, nil
}

func (e *Extractor) toTransactions(rows []replyRow) []models.Transaction {
	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		amount, err := extraction.ParseAmount(row.Amount)
		if err != nil {
			e.logger.Warn("dropping row with unreadable amount", "amount", row.Amount, "error", err)
			continue
		}
		tx := models.Transaction{
			Description:    row.Description,
			Amount:         amount,
			OriginalAmount: row.Amount,
		}
		if row.Date != "" {
			if d, err := extraction.ParseDate(row.Date); err == nil {
				tx.Date = d
			}
		}
		out = append(out, tx)
	}
	return out
}

func (e *Extractor) cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// chunk splits text into groups of non-blank lines
func chunk(text string) []string {
	var (
		out     []string
		current []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		current = append(current, line)
		if len(current) == chunkLines {
			out = append(out, strings.Join(current, "\n"))
			current = nil
		}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, "\n"))
	}
	return out
}

func buildPrompt(kind extraction.Kind, text string) string {
	var what string
	switch kind {
	case extraction.KindContributorList:
		what = `This is a list of expected contributions. Each row has a contributor name and an amount; a date is optional.
Put the contributor name in "description". Leave "date" empty when the row has none.`
	default:
		what = `This is a bank statement. Each row has a date, a description and a signed amount.
Credits are positive and debits negative. Skip balance and total lines.`
	}

	return fmt.Sprintf(`%s

Rules:
1. Keep the rows in the order they appear.
2. Dates as YYYY-MM-DD.
3. Amounts as plain decimals with a dot separator, e.g. -1234.56.
4. Do not invent rows that are not in the text.

Return a JSON object with this structure:
{
  "rows": [
    {"date": "2024-03-10", "description": "text as printed", "amount": "150.00"}
  ]
}

Text:
%s`, what, text)
}
