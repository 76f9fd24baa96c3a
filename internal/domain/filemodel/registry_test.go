package filemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

func newModel(owner, fingerprint string) models.FileModel {
	return models.FileModel{
		Name:        "Banco Teste",
		OwnerID:     owner,
		Fingerprint: fingerprint,
		Mapping: models.ColumnMapping{
			DateColumn:        0,
			DescriptionColumn: 1,
			AmountColumn:      2,
			CreditColumn:      -1,
			DebitColumn:       -1,
			HeaderRows:        1,
		},
	}
}

func activeCount(list []models.FileModel) int {
	n := 0
	for _, m := range list {
		if m.IsActive {
			n++
		}
	}
	return n
}

func TestRegistry_SaveAssignsIdentityAndVersion(t *testing.T) {
	reg := NewRegistry(nil)

	saved, err := reg.Save(newModel("u1", "fp1"))
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, saved.ID, saved.LineageID, "first version starts its own lineage")
	assert.Equal(t, 1, saved.Version)
	assert.True(t, saved.IsActive)
	assert.Equal(t, models.FileModelDraft, saved.Status)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestRegistry_SaveNewVersionDeactivatesLineage(t *testing.T) {
	reg := NewRegistry(nil)

	v1, err := reg.Save(newModel("u1", "fp1"))
	require.NoError(t, err)

	next := newModel("u1", "fp1")
	next.LineageID = v1.LineageID
	v2, err := reg.Save(next)
	require.NoError(t, err)

	assert.Equal(t, 2, v2.Version)

	lineage := reg.Lineage(v1.LineageID)
	require.Len(t, lineage, 2)
	assert.Equal(t, 1, activeCount(lineage), "at most one active version per lineage")
	assert.False(t, lineage[0].IsActive)
	assert.True(t, lineage[1].IsActive)
}

func TestRegistry_SaveErrorsLeaveLineagesIntact(t *testing.T) {
	reg := NewRegistry(nil)

	v1, err := reg.Save(newModel("u1", "fp1"))
	require.NoError(t, err)

	t.Run("empty fingerprint", func(t *testing.T) {
		_, err := reg.Save(newModel("u1", ""))
		assert.ErrorIs(t, err, ErrInvalidFingerprint)
	})

	t.Run("duplicate id", func(t *testing.T) {
		dup := newModel("u1", "fp1")
		dup.ID = v1.ID
		_, err := reg.Save(dup)
		assert.ErrorIs(t, err, ErrDuplicateModel)
	})

	t.Run("lineage owned by someone else", func(t *testing.T) {
		foreign := newModel("u2", "fp1")
		foreign.LineageID = v1.LineageID
		_, err := reg.Save(foreign)
		assert.ErrorIs(t, err, ErrLineageOwnerMismatch)
	})

	lineage := reg.Lineage(v1.LineageID)
	require.Len(t, lineage, 1)
	assert.True(t, lineage[0].IsActive)
}

func TestRegistry_ListForVisibility(t *testing.T) {
	reg := NewRegistry(nil)

	own, err := reg.Save(newModel("u1", "fp-own"))
	require.NoError(t, err)
	ownNext := newModel("u1", "fp-own")
	ownNext.LineageID = own.LineageID
	_, err = reg.Save(ownNext)
	require.NoError(t, err)

	global := newModel("u2", "fp-global")
	global.Global = true
	_, err = reg.Save(global)
	require.NoError(t, err)

	_, err = reg.Save(newModel("u2", "fp-private"))
	require.NoError(t, err)

	u1 := reg.ListFor("u1")
	assert.Len(t, u1, 3, "both own versions plus the active global model")

	u3 := reg.ListFor("u3")
	require.Len(t, u3, 1)
	assert.Equal(t, "fp-global", u3[0].Fingerprint)
}

func TestRegistry_CacheInvalidatedOnWrite(t *testing.T) {
	reg := NewRegistry(nil)

	assert.Empty(t, reg.ListFor("u1"))
	assert.Equal(t, 1, reg.cache.Size())

	saved, err := reg.Save(newModel("u1", "fp1"))
	require.NoError(t, err)
	assert.Equal(t, 0, reg.cache.Size())
	assert.Len(t, reg.ListFor("u1"), 1)

	name := "Renamed"
	_, err = reg.Update(saved.ID, Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reg.ListFor("u1")[0].Name)

	require.NoError(t, reg.Delete(saved.ID))
	assert.Empty(t, reg.ListFor("u1"))
}

func TestRegistry_UpdateActivationSwapsActiveVersion(t *testing.T) {
	reg := NewRegistry(nil)

	v1, err := reg.Save(newModel("u1", "fp1"))
	require.NoError(t, err)
	next := newModel("u1", "fp1")
	next.LineageID = v1.LineageID
	_, err = reg.Save(next)
	require.NoError(t, err)

	active := true
	updated, err := reg.Update(v1.ID, Patch{IsActive: &active})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, 1, activeCount(reg.Lineage(v1.LineageID)))

	_, err = reg.Update("missing", Patch{IsActive: &active})
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistry_DeleteActivePromotesNewestRemaining(t *testing.T) {
	reg := NewRegistry(nil)

	v1, err := reg.Save(newModel("u1", "fp1"))
	require.NoError(t, err)
	next := newModel("u1", "fp1")
	next.LineageID = v1.LineageID
	v2, err := reg.Save(next)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(v2.ID))

	got, err := reg.Get(v1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	assert.ErrorIs(t, reg.Delete(v2.ID), ErrModelNotFound)
}

func TestRegistry_LoadKeepsSingleActivePerLineage(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Load([]models.FileModel{
		{ID: "a", LineageID: "L", Version: 1, IsActive: true, OwnerID: "u1", Fingerprint: "fp"},
		{ID: "b", LineageID: "L", Version: 2, IsActive: true, OwnerID: "u1", Fingerprint: "fp"},
	})

	lineage := reg.Lineage("L")
	require.Len(t, lineage, 2)
	assert.False(t, lineage[0].IsActive)
	assert.True(t, lineage[1].IsActive)
}

func TestSelectFor(t *testing.T) {
	known := []models.FileModel{
		{ID: "g2", OwnerID: "other", Global: true, IsActive: true, Version: 2, Fingerprint: "fp"},
		{ID: "own", OwnerID: "u1", IsActive: true, Version: 1, Fingerprint: "fp"},
		{ID: "old", OwnerID: "u1", IsActive: false, Version: 3, Fingerprint: "fp"},
		{ID: "priv", OwnerID: "other", IsActive: true, Version: 9, Fingerprint: "fp"},
	}

	got, ok := SelectFor(known, "fp", "u1")
	require.True(t, ok)
	assert.Equal(t, "own", got.ID, "owner's model beats a newer global one")

	got, ok = SelectFor(known, "fp", "u9")
	require.True(t, ok)
	assert.Equal(t, "g2", got.ID)

	_, ok = SelectFor(known, "nope", "u1")
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	a := [][]string{
		{"Data", "Histórico", "Valor"},
		{"10/03/2024", "PIX JOAO", "150,00"},
	}
	b := [][]string{
		{"DATA", "Historico", "VALOR"},
		{"11/04/2024", "TED MARIA", "-20,00"},
		{"12/04/2024", "DOC PEDRO", "30,00"},
	}
	c := [][]string{
		{"Data", "Descrição", "Valor"},
		{"10/03/2024", "PIX JOAO", "150,00"},
	}

	assert.Equal(t, Fingerprint(a, ";"), Fingerprint(b, ";"), "same layout, different data")
	assert.NotEqual(t, Fingerprint(a, ";"), Fingerprint(a, ","), "delimiter is part of the layout")
	assert.NotEqual(t, Fingerprint(a, ";"), Fingerprint(c, ";"), "header wording is part of the layout")

	headerless := [][]string{{"10/03/2024", "PIX JOAO", "150,00"}}
	assert.NotEmpty(t, Fingerprint(headerless, ","))
}
