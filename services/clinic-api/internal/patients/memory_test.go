package patients

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListSearchAndPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i, name := range []string{"Carla Perez", "Ana Gomez", "Bruno Perez"} {
		_, err := m.Create(ctx, Patient{Document: fmt.Sprintf("DOC-%02d", i), FullName: name})
		require.NoError(t, err)
	}

	all, total, err := m.List(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "Ana Gomez", all[0].FullName)

	found, total, err := m.List(ctx, Query{Search: "perez", Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, found, 1)
	assert.Equal(t, "Carla Perez", found[0].FullName)

	byDoc, _, err := m.List(ctx, Query{Search: "doc-01"})
	require.NoError(t, err)
	require.Len(t, byDoc, 1)
	assert.Equal(t, "Ana Gomez", byDoc[0].FullName)
}

func TestMemoryStoreDocumentsAreUnique(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	a, err := m.Create(ctx, Patient{Document: "11111", FullName: "Ana Gomez"})
	require.NoError(t, err)
	b, err := m.Create(ctx, Patient{Document: "22222", FullName: "Bruno Diaz"})
	require.NoError(t, err)

	_, err = m.Create(ctx, Patient{Document: "11111", FullName: "Someone Else"})
	assert.ErrorIs(t, err, ErrDuplicateDocument)

	doc := "11111"
	_, err = m.Update(ctx, b.ID, Changes{Patch: Patch{Document: &doc}})
	assert.ErrorIs(t, err, ErrDuplicateDocument)

	// The old document is released on change.
	doc = "33333"
	_, err = m.Update(ctx, a.ID, Changes{Patch: Patch{Document: &doc}})
	require.NoError(t, err)
	_, err = m.Create(ctx, Patient{Document: "11111", FullName: "Carla Ruiz"})
	assert.NoError(t, err)
}

func TestMemoryStoreUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	p, err := m.Create(ctx, Patient{Document: "11111", FullName: "Ana Gomez", Phone: "555-0100"})
	require.NoError(t, err)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	empty := ""
	name := "Ana Gomez Ruiz"
	updated, err := m.Update(ctx, p.ID, Changes{Patch: Patch{FullName: &name, Phone: &empty}, UpdatedBy: "u-1", UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, "Ana Gomez Ruiz", updated.FullName)
	assert.Empty(t, updated.Phone)
	assert.Equal(t, "u-1", updated.UpdatedBy)
	assert.Equal(t, at, updated.UpdatedAt)

	_, err = m.Update(ctx, p.ID, Changes{UpdatedAt: at})
	assert.ErrorIs(t, err, ErrNoFieldsToUpdate)

	require.NoError(t, m.Delete(ctx, p.ID))
	_, err = m.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, p.ID), ErrNotFound)
	_, err = m.Update(ctx, p.ID, Changes{Patch: Patch{FullName: &name}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPatchEmpty(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	s := ""
	assert.False(t, Patch{Address: &s}.Empty())
}
