package aiextract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
)

type fakeChat struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (*ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	content := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return &ChatCompletionResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}}}, nil
}

func TestExtract_ParsesRows(t *testing.T) {
	// Arrange
	chat := &fakeChat{replies: []string{`{"rows":[
		{"date":"2024-03-10","description":"PIX RECEBIDO MARIA","amount":"150.00"},
		{"date":"","description":"TARIFA","amount":"-12,50"},
		{"date":"2024-03-11","description":"LIXO","amount":"abc"}
	]}`}}
	e := New(chat, "test-model", nil, nil)

	// Act
	txs, err := e.Extract(context.Background(), extraction.AIRequest{
		FileName: "extrato.pdf",
		Text:     "10/03 PIX RECEBIDO MARIA 150,00\nTARIFA -12,50",
		Kind:     extraction.KindStatement,
	}, nil)

	// Assert
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), txs[0].Date)
	assert.True(t, decimal.RequireFromString("150").Equal(txs[0].Amount))
	assert.Equal(t, "PIX RECEBIDO MARIA", txs[0].Description)
	assert.True(t, txs[1].Date.IsZero())
	assert.True(t, decimal.RequireFromString("-12.5").Equal(txs[1].Amount))

	require.Len(t, chat.requests, 1)
	assert.Equal(t, "test-model", chat.requests[0].Model)
	assert.Equal(t, "json_object", chat.requests[0].ResponseFormat.Type)
	assert.Contains(t, chat.requests[0].Messages[1].Content, "bank statement")
}

func TestExtract_ContributorPrompt(t *testing.T) {
	chat := &fakeChat{replies: []string{`{"rows":[{"description":"Maria Souza","amount":"300"}]}`}}
	e := New(chat, "", nil, nil)

	txs, err := e.Extract(context.Background(), extraction.AIRequest{
		FileName: "lista.pdf",
		Text:     "Maria Souza 300,00",
		Kind:     extraction.KindContributorList,
	}, nil)

	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Maria Souza", txs[0].Description)
	assert.Equal(t, "gpt-4o", chat.requests[0].Model)
	assert.Contains(t, chat.requests[0].Messages[1].Content, "expected contributions")
}

func TestExtract_ChunksAndReportsProgress(t *testing.T) {
	// Arrange
	var lines []string
	for i := 0; i < chunkLines*2+5; i++ {
		lines = append(lines, fmt.Sprintf("linha %d", i))
		if i%10 == 0 {
			lines = append(lines, "   ")
		}
	}
	chat := &fakeChat{replies: []string{`{"rows":[{"date":"2024-01-01","description":"x","amount":"1"}]}`}}
	e := New(chat, "m", nil, nil)

	var calls [][2]int

	// Act
	txs, err := e.Extract(context.Background(), extraction.AIRequest{
		FileName: "big.txt",
		Text:     strings.Join(lines, "\r\n"),
		Kind:     extraction.KindStatement,
	}, func(done, total int) { calls = append(calls, [2]int{done, total}) })

	// Assert
	require.NoError(t, err)
	assert.Len(t, chat.requests, 3)
	assert.Len(t, txs, 3)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)
	assert.NotContains(t, chat.requests[0].Messages[1].Content, "   \n")
}

func TestExtract_BinaryOnlyIsPermanent(t *testing.T) {
	chat := &fakeChat{}
	e := New(chat, "m", nil, nil)

	_, err := e.Extract(context.Background(), extraction.AIRequest{
		FileName:  "scan.pdf",
		RawBinary: []byte{0x25, 0x50, 0x44, 0x46},
		Kind:      extraction.KindStatement,
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, extraction.ErrPermanent)
	assert.ErrorIs(t, err, ErrNoText)
	assert.Empty(t, chat.requests)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name      string
		chat      *fakeChat
		permanent bool
	}{
		{name: "client failure", chat: &fakeChat{err: errors.New("connection reset")}},
		{name: "malformed reply", chat: &fakeChat{replies: []string{"not json"}}},
		{name: "permanent client failure", chat: &fakeChat{err: fmt.Errorf("%w: bad key", extraction.ErrPermanent)}, permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.chat, "m", nil, nil)

			_, err := e.Extract(context.Background(), extraction.AIRequest{FileName: "f.txt", Text: "a b c"}, nil)

			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, extraction.ErrPermanent))
		})
	}
}

func TestExtract_UsesCache(t *testing.T) {
	// Arrange
	chat := &fakeChat{replies: []string{`{"rows":[{"date":"2024-01-01","description":"x","amount":"1"}]}`}}
	cache := NewMemoryCache()
	e := New(chat, "m", cache, nil)
	req := extraction.AIRequest{FileName: "f.txt", Text: "01/01 x 1,00", Kind: extraction.KindStatement}

	// Act
	first, err1 := e.Extract(context.Background(), req, nil)
	second, err2 := e.Extract(context.Background(), req, nil)

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
	assert.Len(t, chat.requests, 1)
	assert.Equal(t, 1, cache.Size())
}

func TestExtract_MalformedReplyIsNotCached(t *testing.T) {
	chat := &fakeChat{replies: []string{"{", `{"rows":[]}`}}
	cache := NewMemoryCache()
	e := New(chat, "m", cache, nil)
	req := extraction.AIRequest{FileName: "f.txt", Text: "linha"}

	_, err := e.Extract(context.Background(), req, nil)
	require.Error(t, err)

	txs, err := e.Extract(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Len(t, chat.requests, 2)
}

func TestOpenAIClient_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		permanent bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"choices":[{"message":{"role":"assistant","content":"{}"}}]}`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key","type":"auth","code":"invalid_api_key"}}`, wantErr: true, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `slow down`, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, body: `oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewOpenAIClient("k", srv.URL)
			resp, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})

			if !tt.wantErr {
				require.NoError(t, err)
				require.Len(t, resp.Choices, 1)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, extraction.ErrPermanent))
		})
	}
}
