package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/contribution-reconciler/internal/api"
	"github.com/eshaffer321/contribution-reconciler/internal/api/dto"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage"
)

const statementCSV = "Data;Histórico;Valor\n" +
	"10/03/2024;PIX JOAO DA SILVA;150,00\n" +
	"11/03/2024;PIX MARIA SOUZA;200,00\n"

var churchA = models.Church{ID: "a", Name: "Igreja A"}

type runResponse struct {
	SessionID string               `json:"session_id"`
	RunID     int64                `json:"run_id"`
	Applied   bool                 `json:"applied"`
	Results   []models.MatchResult `json:"results"`
}

func newTestServer(t *testing.T) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(config.Default(), repo, extraction.NewSelector(logger), logger)
	require.NoError(t, err)
	return api.NewServer(api.DefaultConfig(), svc, logger), repo
}

func do(t *testing.T, server *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func reconcileMarch(t *testing.T, server *api.Server) runResponse {
	t.Helper()
	rec := do(t, server, http.MethodPost, "/api/sessions/march/reconcile", dto.ReconcileRequest{
		OwnerID:   "u1",
		Statement: dto.FileUpload{Name: "extrato.csv", Text: statementCSV},
		Contributors: []dto.ContributorUpload{{
			Church: churchA,
			File:   dto.FileUpload{Name: "lista.csv", Content: []byte("Nome;Valor\nJoao Silva;150,00\n")},
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[runResponse](t, rec)
}

func findResult(t *testing.T, results []models.MatchResult, status models.Status) models.MatchResult {
	t.Helper()
	for _, r := range results {
		if r.Status == status {
			return r
		}
	}
	t.Fatalf("no %s result", status)
	return models.MatchResult{}
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := do(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[dto.HealthResponse](t, rec).Status)
}

func TestServer_Reconcile(t *testing.T) {
	// Arrange
	server, repo := newTestServer(t)

	// Act
	out := reconcileMarch(t, server)

	// Assert
	assert.Equal(t, "march", out.SessionID)
	assert.True(t, out.Applied)
	require.Len(t, out.Results, 2)
	identified := findResult(t, out.Results, models.StatusIdentified)
	assert.Equal(t, "a", identified.Church.ID)

	run, err := repo.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
}

func TestServer_ReconcileValidation(t *testing.T) {
	tests := []struct {
		name string
		body any
		code int
	}{
		{name: "malformed body", body: "not an object", code: http.StatusBadRequest},
		{name: "missing statement", body: dto.ReconcileRequest{OwnerID: "u1"}, code: http.StatusBadRequest},
		{name: "empty statement", body: dto.ReconcileRequest{Statement: dto.FileUpload{Name: "vazio.csv"}}, code: http.StatusBadRequest},
		{
			name: "contributor list without church",
			body: dto.ReconcileRequest{
				Statement:    dto.FileUpload{Name: "extrato.csv", Text: statementCSV},
				Contributors: []dto.ContributorUpload{{File: dto.FileUpload{Name: "lista.csv", Text: "Joao;1,00"}}},
			},
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t)

			rec := do(t, server, http.MethodPost, "/api/sessions/s1/reconcile", tt.body)

			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestServer_ResultsAndSummary(t *testing.T) {
	server, _ := newTestServer(t)
	reconcileMarch(t, server)

	t.Run("all results", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/sessions/march/results", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decode[dto.ResultListResponse](t, rec).Count)
	})

	t.Run("filtered by status", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/sessions/march/results?status=unidentified", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[dto.ResultListResponse](t, rec)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, "PIX MARIA SOUZA", list.Results[0].Transaction.Description)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/sessions/march/results?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("summary", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/sessions/march/summary", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var summary struct {
			Total int `json:"total"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
		assert.Equal(t, 2, summary.Total)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/sessions/nope/summary", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decode[dto.APIError](t, rec).Code)
	})

	t.Run("session info and list", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/sessions/march", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decode[dto.SessionInfo](t, rec).ResultCount)

		rec = do(t, server, http.MethodGet, "/api/sessions?owner_id=u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decode[dto.SessionListResponse](t, rec).Count)
	})
}

func TestServer_ConfirmAndReopen(t *testing.T) {
	// Arrange
	server, _ := newTestServer(t)
	out := reconcileMarch(t, server)
	maria := findResult(t, out.Results, models.StatusUnidentified)
	base := "/api/sessions/march/results/" + maria.Transaction.ID

	// Act
	rec := do(t, server, http.MethodPost, base+"/confirm", dto.ConfirmRequest{
		ChurchID:    "a",
		Contributor: dto.ContributorInput{Name: "Maria Souza", Amount: "200,00"},
	})

	// Assert
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[dto.ResultResponse](t, rec).Result
	assert.Equal(t, models.StatusIdentified, confirmed.Status)
	assert.Equal(t, models.MethodManual, confirmed.MatchMethod)

	rec = do(t, server, http.MethodGet, "/api/associations?owner_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[dto.AssociationListResponse](t, rec).Count)

	// A manual identification cannot be confirmed twice.
	rec = do(t, server, http.MethodPost, base+"/confirm", dto.ConfirmRequest{
		ChurchID:    "a",
		Contributor: dto.ContributorInput{Name: "Maria Souza"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, server, http.MethodPost, base+"/reopen", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusUnidentified, decode[dto.ResultResponse](t, rec).Result.Status)
}

func TestServer_OverrideErrors(t *testing.T) {
	server, _ := newTestServer(t)
	out := reconcileMarch(t, server)
	maria := findResult(t, out.Results, models.StatusUnidentified)

	tests := []struct {
		name string
		path string
		body any
		code int
	}{
		{name: "unknown transaction", path: "/api/sessions/march/results/missing/reopen", code: http.StatusNotFound},
		{name: "unknown session", path: "/api/sessions/nope/results/x/reopen", code: http.StatusNotFound},
		{name: "divergence on plain result", path: "/api/sessions/march/results/" + maria.Transaction.ID + "/divergence/confirm", code: http.StatusConflict},
		{
			name: "unknown church",
			path: "/api/sessions/march/results/" + maria.Transaction.ID + "/confirm",
			body: dto.ConfirmRequest{ChurchID: "zz", Contributor: dto.ContributorInput{Name: "Maria"}},
			code: http.StatusBadRequest,
		},
		{
			name: "bad amount",
			path: "/api/sessions/march/results/" + maria.Transaction.ID + "/confirm",
			body: dto.ConfirmRequest{ChurchID: "a", Contributor: dto.ContributorInput{Name: "Maria", Amount: "abc"}},
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, server, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_AddContributors(t *testing.T) {
	server, _ := newTestServer(t)
	reconcileMarch(t, server)

	rec := do(t, server, http.MethodPost, "/api/sessions/march/contributors", dto.ContributorsRequest{
		OwnerID: "u1",
		Contributors: []dto.ContributorUpload{{
			Church: models.Church{ID: "b", Name: "Igreja B"},
			File:   dto.FileUpload{Name: "b.csv", Text: "Nome;Valor\nMaria Souza;200,00\n"},
		}},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[runResponse](t, rec)
	for _, r := range out.Results {
		assert.Equal(t, models.StatusIdentified, r.Status, r.Transaction.Description)
	}

	rec = do(t, server, http.MethodGet, "/api/runs?session_id=march", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[dto.RunListResponse](t, rec).Count)
}

func TestServer_ModelLifecycle(t *testing.T) {
	// Arrange
	server, _ := newTestServer(t)

	// Act
	rec := do(t, server, http.MethodPost, "/api/models", dto.TrainModelRequest{
		Name:         "Banco X",
		OwnerID:      "u1",
		Approve:      true,
		Sample:       [][]string{{"REF", "QUANDO", "QUEM", "QUANTO"}, {"A1", "20240310", "JOAO", "150.00"}},
		Mapping:      models.ColumnMapping{DateColumn: 1, DescriptionColumn: 2, AmountColumn: 3, CreditColumn: -1, DebitColumn: -1, HeaderRows: 1},
		ParsingRules: models.ParsingRules{Delimiter: "|", DateFormat: "20060102"},
	})

	// Assert
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.FileModel](t, rec)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.IsActive)

	rec = do(t, server, http.MethodGet, "/api/models?owner_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[dto.ModelListResponse](t, rec).Count)

	name := "Banco X (conta corrente)"
	rec = do(t, server, http.MethodPatch, "/api/models/"+created.ID, dto.UpdateModelRequest{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, name, decode[models.FileModel](t, rec).Name)

	rec = do(t, server, http.MethodDelete, "/api/models/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/models/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_EmptyListsAreArrays(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/api/models", "/api/associations", "/api/runs"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, server, http.MethodGet, path, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.NotContains(t, rec.Body.String(), "null")
		})
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/models", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
