package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/contribution-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/filemodel"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage"
)

const statementCSV = "Data;Histórico;Valor\n" +
	"10/03/2024;PIX JOAO DA SILVA;150,00\n" +
	"11/03/2024;PIX MARIA SOUZA;200,00\n"

const customLayout = "REF|QUANDO|QUEM|QUANTO\n" +
	"A1|20240310|JOAO SILVA|150.00\n" +
	"A2|20240311|MARIA SOUZA|200.00\n"

var (
	churchA = models.Church{ID: "a", Name: "Igreja A"}
	churchB = models.Church{ID: "b", Name: "Igreja B"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, store storage.Repository) *ReconciliationService {
	t.Helper()
	logger := quietLogger()
	svc, err := New(config.Default(), store, extraction.NewSelector(logger), logger)
	require.NoError(t, err)
	return svc
}

func contributorList(church models.Church, text string) reconcile.ContributorFile {
	return reconcile.ContributorFile{Church: church, File: reconcile.File{Name: church.ID + ".csv", Text: text}}
}

func statement() reconcile.File {
	return reconcile.File{Name: "extrato.csv", Text: statementCSV}
}

func TestReconcile_CreatesSessionAndRecordsRun(t *testing.T) {
	// Arrange
	store := storage.NewMockRepository()
	svc := newService(t, store)

	// Act
	out, err := svc.Reconcile(context.Background(), RunRequest{
		SessionID:    "march",
		OwnerID:      "u1",
		Statement:    statement(),
		Contributors: []reconcile.ContributorFile{contributorList(churchA, "Nome;Valor\nJoao Silva;150,00\n")},
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "march", out.SessionID)
	require.Len(t, out.Results, 2)
	assert.Equal(t, 1, out.Summary.Units[0].Identified)

	session, err := svc.Session("march")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.OwnerID)
	assert.Equal(t, []models.Church{churchA}, session.Churches)
	assert.Len(t, session.Results, 2)

	run, err := store.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
	assert.Equal(t, storage.RunFull, run.Mode)
	assert.Equal(t, 1, run.Identified)
	assert.Equal(t, 1, run.Unidentified)
}

func TestReconcile_GeneratesSessionID(t *testing.T) {
	svc := newService(t, storage.NewMockRepository())

	out, err := svc.Reconcile(context.Background(), RunRequest{Statement: statement()})

	require.NoError(t, err)
	assert.NotEmpty(t, out.SessionID)
}

func TestReconcile_RequiresStatement(t *testing.T) {
	svc := newService(t, storage.NewMockRepository())

	_, err := svc.Reconcile(context.Background(), RunRequest{SessionID: "s"})

	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReconcile_FailedRunIsRecorded(t *testing.T) {
	store := storage.NewMockRepository()
	svc := newService(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Reconcile(ctx, RunRequest{SessionID: "s", Statement: statement()})

	require.ErrorIs(t, err, context.Canceled)
	runs, err := store.ListRuns(storage.RunFilters{SessionID: "s"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunStatusFailed, runs[0].Status)
}

func TestReconcile_SaveErrorIsReturned(t *testing.T) {
	store := storage.NewMockRepository()
	store.SaveSessionErr = errors.New("disk full")
	svc := newService(t, store)

	_, err := svc.Reconcile(context.Background(), RunRequest{SessionID: "s", Statement: statement()})

	assert.ErrorContains(t, err, "disk full")
	runs, err := store.ListRuns(storage.RunFilters{SessionID: "s"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].ErrorMessage, "disk full")
}

func TestReconcile_RunRecordingFailureIsLogged(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	store := storage.NewMockRepository()
	store.SaveSessionErr = errors.New("disk full")
	store.CompleteRunErr = errors.New("runs table locked")
	svc, err := New(config.Default(), store, extraction.NewSelector(logger), logger)
	require.NoError(t, err)

	// Act
	_, err = svc.Reconcile(context.Background(), RunRequest{SessionID: "s", Statement: statement()})

	// Assert
	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, buf.String(), "could not record failed run")
	assert.Contains(t, buf.String(), "runs table locked")
}

func TestAddContributors_UpgradesOpenResults(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, storage.NewMockRepository())
	_, err := svc.Reconcile(ctx, RunRequest{
		SessionID:    "s",
		OwnerID:      "u1",
		Statement:    statement(),
		Contributors: []reconcile.ContributorFile{contributorList(churchA, "Nome;Valor\nJoao Silva;150,00\n")},
	})
	require.NoError(t, err)

	out, err := svc.AddContributors(ctx, RunRequest{
		SessionID:    "s",
		Contributors: []reconcile.ContributorFile{contributorList(churchB, "Nome;Valor\nMaria Souza;200,00\n")},
	})

	require.NoError(t, err)
	identified := models.StatusIdentified
	results, err := svc.Results("s", ResultFilter{Status: &identified})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	inB, err := svc.Results("s", ResultFilter{ChurchID: "b"})
	require.NoError(t, err)
	require.Len(t, inB, 1)
	assert.Equal(t, "PIX MARIA SOUZA", inB[0].Transaction.Description)

	session, err := svc.Session("s")
	require.NoError(t, err)
	assert.Equal(t, []models.Church{churchA, churchB}, session.Churches)
	assert.Len(t, out.Summary.Units, 2)
}

func TestAddContributors_UnknownSession(t *testing.T) {
	svc := newService(t, storage.NewMockRepository())

	_, err := svc.AddContributors(context.Background(), RunRequest{
		SessionID:    "missing",
		Contributors: []reconcile.ContributorFile{contributorList(churchA, "Nome;Valor\nJoao;1,00\n")},
	})

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConfirm_PersistsAndLearns(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := storage.NewMockRepository()
	svc := newService(t, store)
	out, err := svc.Reconcile(ctx, RunRequest{SessionID: "s", OwnerID: "u1", Statement: statement(), Churches: []models.Church{churchA}})
	require.NoError(t, err)
	txID := out.Results[1].Transaction.ID

	// Act
	result, err := svc.Confirm(ConfirmRequest{
		SessionID:     "s",
		TransactionID: txID,
		ChurchID:      "a",
		Contributor:   models.Contributor{Name: "Tesouraria Central"},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.MethodManual, result.MatchMethod)
	assert.Equal(t, churchA, result.Church)

	stored, err := svc.Results("s", ResultFilter{ChurchID: "a"})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assocs, err := store.ListAssociations("u1")
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, "maria souza", assocs[0].NormalizedDescription, "configured keywords strip the pix prefix")
	assert.Equal(t, "tesouraria central", assocs[0].ContributorNormalizedName)
	assert.Len(t, svc.Associations("u1"), 1)

	// reopen brings it back to review
	reopened, err := svc.Reopen("s", txID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnidentified, reopened.Status)
}

func TestConfirm_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, storage.NewMockRepository())
	out, err := svc.Reconcile(ctx, RunRequest{SessionID: "s", Statement: statement(), Churches: []models.Church{churchA}})
	require.NoError(t, err)
	txID := out.Results[0].Transaction.ID

	_, err = svc.Confirm(ConfirmRequest{SessionID: "s", TransactionID: txID, ChurchID: "zz", Contributor: models.Contributor{Name: "X"}})
	assert.ErrorIs(t, err, ErrUnknownChurch)

	_, err = svc.Confirm(ConfirmRequest{SessionID: "s", TransactionID: txID, ChurchID: "a"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Confirm(ConfirmRequest{SessionID: "nope", TransactionID: txID, ChurchID: "a", Contributor: models.Contributor{Name: "X"}})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.ConfirmDivergence("s", txID)
	assert.ErrorIs(t, err, reconcile.ErrInvalidTransition)

	_, err = svc.RejectDivergence("s", "no-such-tx")
	assert.ErrorIs(t, err, reconcile.ErrResultNotFound)
}

func TestLearnedAssociationsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockRepository()
	svc := newService(t, store)
	out, err := svc.Reconcile(ctx, RunRequest{SessionID: "s", OwnerID: "u1", Statement: statement(), Churches: []models.Church{churchA}})
	require.NoError(t, err)
	_, err = svc.Confirm(ConfirmRequest{
		SessionID:     "s",
		TransactionID: out.Results[1].Transaction.ID,
		ChurchID:      "a",
		Contributor:   models.Contributor{Name: "Tesouraria Central"},
	})
	require.NoError(t, err)

	// A fresh service reads the association back from storage
	restarted := newService(t, store)
	again, err := restarted.Reconcile(ctx, RunRequest{
		SessionID:    "april",
		OwnerID:      "u1",
		Statement:    statement(),
		Contributors: []reconcile.ContributorFile{contributorList(churchA, "Nome;Valor\nTesouraria Central;200,00\n")},
	})

	require.NoError(t, err)
	maria := again.Results[1]
	assert.Equal(t, models.StatusIdentified, maria.Status)
	assert.Equal(t, models.MethodLearned, maria.MatchMethod)
}

func TestTrainModel_UnlocksUnreadableStatement(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := storage.NewMockRepository()
	svc := newService(t, store)
	file := reconcile.File{Name: "banco-x.txt", Text: customLayout}

	first, err := svc.Reconcile(ctx, RunRequest{SessionID: "s", OwnerID: "u1", Statement: file})
	require.NoError(t, err)
	require.False(t, first.Applied)
	require.Len(t, first.ModelRequests, 1)
	mc := first.ModelRequests[0].Context
	require.NotNil(t, mc)

	// Act
	model, err := svc.TrainModel(TrainRequest{
		Name:        "Banco X",
		OwnerID:     "u1",
		Approve:     true,
		Fingerprint: mc.Fingerprint,
		Sample:      mc.SampleRows,
		Mapping: models.ColumnMapping{
			DateColumn: 1, DescriptionColumn: 2, AmountColumn: 3, CreditColumn: -1, DebitColumn: -1, HeaderRows: 1,
		},
		ParsingRules: models.ParsingRules{Delimiter: "|", DateFormat: "YYYYMMDD"},
	})
	require.NoError(t, err)
	second, err := svc.Reconcile(ctx, RunRequest{SessionID: "s", OwnerID: "u1", Statement: file})

	// Assert
	require.NoError(t, err)
	assert.True(t, second.Applied)
	assert.Len(t, second.Results, 2)
	assert.Equal(t, "model:Banco X@v1", second.Extraction[0].Method)

	persisted, err := store.ListFileModels()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, model.ID, persisted[0].ID)
	assert.Equal(t, models.FileModelApproved, persisted[0].Status)
	assert.NotEmpty(t, persisted[0].Snippet)
}

func TestModelLifecycle_PersistsLineage(t *testing.T) {
	store := storage.NewMockRepository()
	svc := newService(t, store)
	base := TrainRequest{Name: "Banco X", OwnerID: "u1", Fingerprint: "fp", ParsingRules: models.ParsingRules{Delimiter: ";"}}

	v1, err := svc.TrainModel(base)
	require.NoError(t, err)
	refined := base
	refined.LineageID = v1.LineageID
	v2, err := svc.TrainModel(refined)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	stored, err := store.ListFileModels()
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.False(t, stored[0].IsActive, "older version deactivated in storage too")
	assert.True(t, stored[1].IsActive)

	name := "Banco X (conta)"
	updated, err := svc.UpdateModel(v1.ID, filemodel.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	require.NoError(t, svc.DeleteModel(v2.ID))
	stored, err = store.ListFileModels()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsActive, "remaining version takes over")

	assert.ErrorIs(t, svc.DeleteModel("missing"), filemodel.ErrModelNotFound)
	_, err = svc.TrainModel(TrainRequest{OwnerID: "u1", Fingerprint: "fp"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Len(t, svc.Models("u1"), 1)
}

func TestSessionRunsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockRepository()
	svc := newService(t, store)
	_, err := svc.Reconcile(ctx, RunRequest{SessionID: "s", Statement: statement()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddContributors(ctx, RunRequest{
				SessionID:    "s",
				Contributors: []reconcile.ContributorFile{contributorList(churchA, "Nome;Valor\nNinguem;1,00\n")},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	results, err := svc.Results("s", ResultFilter{})
	require.NoError(t, err)
	// 2 statement rows plus one ghost per additive run, none lost to a race
	assert.Len(t, results, 10)
}
