package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avast/retry-go"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// ErrPermanent marks an AI failure that retrying cannot fix. Extractors wrap
// it to stop the retry loop early.
var ErrPermanent = errors.New("permanent extraction failure")

func (s *Selector) extractWithAI(ctx context.Context, in Input, key string) ([]models.Transaction, error) {
	req := AIRequest{
		FileName:  in.FileName,
		Text:      in.Text,
		RawBinary: in.RawBinary,
		Kind:      in.Kind,
	}
	progress := s.progress
	if progress == nil {
		progress = func(int, int) {}
	}

	var raw []models.Transaction
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			txs, err := s.ai(ctx, req, progress)
			if err != nil {
				return err
			}
			raw = txs
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.aiAttempts),
		retry.Delay(s.aiDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && !errors.Is(err, ErrPermanent) && !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying ai extraction", "file", in.FileName, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("ai extraction: %w", err)
	}

	txs := make([]models.Transaction, 0, len(raw))
	for i, tx := range raw {
		tx.Description = strings.Join(strings.Fields(tx.Description), " ")
		if tx.ID == "" {
			tx.ID = fmt.Sprintf("%s-ai-%d", key, i+1)
		}
		if in.Kind == KindStatement && tx.Date.IsZero() && tx.ParseError == "" {
			tx.ParseError = "missing date"
		}
		tx.CleanedDescription = normalizer.Normalize(tx.Description, in.CleaningKeywords)
		if tx.ContributionType == "" {
			tx.ContributionType = classify(tx.Description, in.ContributionKeywords)
		}
		if tx.OriginalAmount == "" {
			tx.OriginalAmount = tx.Amount.String()
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
