// Package extraction turns decoded statement and contributor files into
// transactions.
//
// Built-in heuristics are tried first (delimited tables, then free-text
// date/amount scanning). When both fail, a trained file model with the same
// structural fingerprint is replayed, then the optional AI fallback runs.
// Files nothing can read come back as MODEL_REQUIRED with enough context for
// a training workflow; that is an outcome, not an error.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/filemodel"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

const (
	defaultAIAttempts  = 3
	defaultAIDelay     = 500 * time.Millisecond
	defaultPageWorkers = 4
	sampleRowCount     = 5
)

// Selector runs the extraction strategies in order.
type Selector struct {
	logger      *slog.Logger
	strategies  []strategy
	ai          AIExtractor
	aiAttempts  uint
	aiDelay     time.Duration
	progress    ProgressFunc
	pageWorkers int
}

// Option configures a Selector.
type Option func(*Selector)

// WithAI injects the external AI fallback.
func WithAI(fn AIExtractor, attempts uint, delay time.Duration) Option {
	return func(s *Selector) {
		s.ai = fn
		if attempts > 0 {
			s.aiAttempts = attempts
		}
		if delay > 0 {
			s.aiDelay = delay
		}
	}
}

// WithProgress sets the callback the AI fallback reports progress to.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Selector) { s.progress = fn }
}

// WithPageWorkers bounds ExtractPages parallelism.
func WithPageWorkers(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.pageWorkers = n
		}
	}
}

// NewSelector creates a selector with the built-in strategies.
func NewSelector(logger *slog.Logger, opts ...Option) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Selector{
		logger:      logger.With("system", "extraction"),
		strategies:  []strategy{delimitedStrategy{}, textPatternStrategy{}},
		aiAttempts:  defaultAIAttempts,
		aiDelay:     defaultAIDelay,
		pageWorkers: defaultPageWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract reads one file. Only cancellation produces an error; unreadable
// files return StatusModelRequired.
func (s *Selector) Extract(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := newDocument(in)
	key := fileKey(in.FileName)

	for _, st := range s.strategies {
		rows := st.extract(doc, in.Kind)
		txs, skipped := s.convert(rows, in, key, separatorAuto, "")
		if len(txs) == 0 {
			continue
		}
		s.logResult(in, st.name(), len(txs), skipped)
		return okResult(txs, st.name(), skipped), nil
	}

	fingerprint := filemodel.Fingerprint(doc.table, doc.delimiter)
	if m, ok := filemodel.SelectFor(in.KnownModels, fingerprint, in.OwnerID); ok {
		rows := applyModel(doc, m)
		txs, skipped := s.convert(rows, in, key, modelSeparator(m.ParsingRules), goLayout(m.ParsingRules.DateFormat))
		if len(txs) > 0 {
			method := fmt.Sprintf("model:%s@v%d", m.Name, m.Version)
			s.logResult(in, method, len(txs), skipped)
			res := okResult(txs, method, skipped)
			res.Model = &m
			return res, nil
		}
		s.logger.Warn("file model matched fingerprint but produced no rows",
			"file", in.FileName, "model_id", m.ID, "version", m.Version)
	}

	if s.ai != nil {
		txs, err := s.extractWithAI(ctx, in, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("ai extraction failed", "file", in.FileName, "error", err)
		} else if len(txs) > 0 {
			s.logResult(in, MethodAI, len(txs), nil)
			return okResult(txs, MethodAI, nil), nil
		}
	}

	s.logger.Info("no strategy could read file, model required",
		"file", in.FileName, "fingerprint", fingerprint, "delimiter", doc.delimiter)

	return &Result{
		Status:       StatusModelRequired,
		ModelContext: modelContext(doc, fingerprint),
	}, nil
}

// ExtractPages extracts the pages of one large file concurrently and
// concatenates them in page order. Pages with nothing shaped like a movement
// row (covers, summaries, blank trailers) are reported in EmptyPages and
// never reach a strategy. If any other page needs a model, the whole file
// does.
func (s *Selector) ExtractPages(ctx context.Context, pages []Input) (*Result, error) {
	results := make([]*Result, len(pages))
	errs := make([]error, len(pages))

	var (
		empty    []int
		readable int
	)
	for i := range pages {
		if !hasRowContent(pages[i]) {
			empty = append(empty, i+1)
			continue
		}
		readable++
	}
	if readable == 0 {
		return s.Extract(ctx, joinPages(pages))
	}

	sem := make(chan struct{}, s.pageWorkers)
	var wg sync.WaitGroup
	for i := range pages {
		if containsInt(empty, i+1) {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = s.Extract(ctx, pages[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	merged := &Result{Status: StatusOK, EmptyPages: empty}
	var methods []string
	for i, res := range results {
		if res == nil {
			s.logger.Debug("page has no rows", "page", i+1, "file", pages[i].FileName)
			continue
		}
		if res.Status == StatusModelRequired {
			s.logger.Info("page requires a model", "page", i+1, "file", pages[i].FileName)
			return res, nil
		}
		merged.Transactions = append(merged.Transactions, res.Transactions...)
		merged.Skipped = append(merged.Skipped, res.Skipped...)
		if !containsString(methods, res.Method) {
			methods = append(methods, res.Method)
		}
		if merged.Model == nil {
			merged.Model = res.Model
		}
	}
	merged.Method = strings.Join(methods, "+")
	merged.Confidence = confidence(len(merged.Transactions), len(merged.Skipped))
	return merged, nil
}

// hasRowContent reports whether a page carries an amount outside balance
// and total lines. Pre-split rows always count.
func hasRowContent(in Input) bool {
	if len(in.Rows) > 0 {
		return true
	}
	for _, line := range strings.Split(in.Text, "\n") {
		key := normalizer.Normalize(line, nil)
		if key == "" || strings.HasPrefix(key, "saldo") || strings.HasPrefix(key, "total") {
			continue
		}
		if hasMoneyToken(strings.FieldsFunc(line, cellBreak)) ||
			hasMoneyToken(strings.FieldsFunc(line, func(r rune) bool { return r == ',' || cellBreak(r) })) {
			return true
		}
	}
	return false
}

func cellBreak(r rune) bool {
	return unicode.IsSpace(r) || r == ';' || r == '|'
}

func hasMoneyToken(tokens []string) bool {
	for _, tok := range tokens {
		if moneyToken.MatchString(strings.Trim(tok, `"'`)) {
			return true
		}
	}
	return false
}

// joinPages folds the pages back into one input so a file with no readable
// page takes the single-file path.
func joinPages(pages []Input) Input {
	in := pages[0]
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	in.Text = strings.Join(texts, "\n")
	return in
}

// convert parses candidate rows into transactions. Rows that fail are
// reported, never fatal.
func (s *Selector) convert(rows []row, in Input, key string, sep separator, dateLayout string) ([]models.Transaction, []RowError) {
	var (
		txs     []models.Transaction
		skipped []RowError
	)
	skip := func(r row, reason string) {
		s.logger.Debug("skipping row", "file", in.FileName, "row", r.index+1, "reason", reason)
		skipped = append(skipped, RowError{Row: r.index + 1, Reason: reason, Raw: r.raw})
	}

	for _, r := range rows {
		description := strings.Join(strings.Fields(r.description), " ")
		if description == "" {
			skip(r, "missing description")
			continue
		}
		if isBalanceRow(description) {
			skip(r, "balance row")
			continue
		}

		amount, original, err := rowAmount(r, sep)
		if err != nil {
			skip(r, err.Error())
			continue
		}

		// Contributor lists may leave the date out; a date that is present
		// must parse for every kind.
		var date time.Time
		if strings.TrimSpace(r.date) != "" || in.Kind == KindStatement {
			date, err = parseDate(r.date, dateLayout)
			if err != nil {
				skip(r, err.Error())
				continue
			}
		}

		txs = append(txs, models.Transaction{
			ID:                 key + "-" + strconv.Itoa(r.index+1),
			Date:               date,
			Description:        description,
			CleanedDescription: normalizer.Normalize(description, in.CleaningKeywords),
			Amount:             amount,
			OriginalAmount:     original,
			ContributionType:   classify(description, in.ContributionKeywords),
		})
	}
	return txs, skipped
}

// rowAmount resolves the signed amount from either the amount column or a
// credit/debit pair.
func rowAmount(r row, sep separator) (decimal.Decimal, string, error) {
	if strings.TrimSpace(r.amount) != "" {
		v, err := parseAmount(r.amount, sep)
		return v, strings.TrimSpace(r.amount), err
	}
	if strings.TrimSpace(r.credit) != "" {
		v, err := parseAmount(r.credit, sep)
		return v.Abs(), strings.TrimSpace(r.credit), err
	}
	if strings.TrimSpace(r.debit) != "" {
		v, err := parseAmount(r.debit, sep)
		return v.Abs().Neg(), strings.TrimSpace(r.debit), err
	}
	return decimal.Zero, "", fmt.Errorf("%w: no amount", ErrEmptyValue)
}

func isBalanceRow(description string) bool {
	key := normalizer.Normalize(description, nil)
	return strings.HasPrefix(key, "saldo") || key == "total" || strings.HasPrefix(key, "total geral")
}

// classify tags a row with the first contribution keyword its text contains.
func classify(description string, keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	key := normalizer.Normalize(description, nil)
	for _, kw := range keywords {
		if normalizer.ContainsKeyword(key, kw) {
			return strings.ToUpper(normalizer.Normalize(kw, nil))
		}
	}
	return ""
}

func modelContext(doc *document, fingerprint string) *ModelContext {
	mc := &ModelContext{Fingerprint: fingerprint, Delimiter: doc.delimiter}
	for _, cells := range doc.table {
		if isBlankRow(cells) {
			continue
		}
		if mc.Headers == nil && !hasDigitCell(cells) {
			mc.Headers = append([]string(nil), cells...)
			continue
		}
		mc.SampleRows = append(mc.SampleRows, append([]string(nil), cells...))
		if len(mc.SampleRows) == sampleRowCount {
			break
		}
	}
	return mc
}

func hasDigitCell(cells []string) bool {
	for _, c := range cells {
		if strings.ContainsAny(c, "0123456789") {
			return true
		}
	}
	return false
}

func okResult(txs []models.Transaction, method string, skipped []RowError) *Result {
	return &Result{
		Transactions: txs,
		Method:       method,
		Status:       StatusOK,
		Confidence:   confidence(len(txs), len(skipped)),
		Skipped:      skipped,
	}
}

func confidence(valid, skipped int) float64 {
	if valid+skipped == 0 {
		return 0
	}
	return float64(valid) / float64(valid+skipped)
}

func (s *Selector) logResult(in Input, method string, rows int, skipped []RowError) {
	s.logger.Info("extracted file",
		"file", in.FileName,
		"method", method,
		"rows", rows,
		"skipped", len(skipped))
}

// fileKey is a short stable hash of the file name used to build row IDs.
func fileKey(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:4])
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Describe returns the layout signature and sample rows extraction derives
// for a file, so a model can be trained for it outside a run.
func Describe(in Input) ModelContext {
	doc := newDocument(in)
	return *modelContext(doc, filemodel.Fingerprint(doc.table, doc.delimiter))
}
