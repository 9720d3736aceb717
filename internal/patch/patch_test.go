package patch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaroslav/microdc/models"
)

func decode[T any](t *testing.T, body string) Partial[T] {
	t.Helper()
	var p Partial[T]
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func TestApply_SequentialPartials(t *testing.T) {
	var n models.VirtualNetwork

	require.NoError(t, Apply(&n, decode[models.VirtualNetwork](t, `{"name":"A","tag":5}`)))
	require.NoError(t, Apply(&n, decode[models.VirtualNetwork](t, `{"name":"B"}`)))

	assert.Equal(t, "B", n.Name)
	require.NotNil(t, n.Tag)
	assert.Equal(t, 5, *n.Tag)
}

func TestApply_InvalidLeavesEntityUntouched(t *testing.T) {
	n := models.VirtualNetwork{ID: "n1", Name: "A", Tag: models.IntPtr(5), Index: 1}
	before := n
	beforeTag := *n.Tag

	err := Apply(&n, decode[models.VirtualNetwork](t, `{"name":"changed","tag":-1}`))
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	assert.Equal(t, before.Name, n.Name)
	assert.Same(t, before.Tag, n.Tag)
	assert.Equal(t, beforeTag, *n.Tag)
	assert.Equal(t, before.Index, n.Index)
}

func TestApply_PointerFieldNotShared(t *testing.T) {
	orig := models.IntPtr(5)
	n := models.VirtualNetwork{Name: "A", Tag: orig}

	require.NoError(t, Apply(&n, decode[models.VirtualNetwork](t, `{"tag":7}`)))
	assert.Equal(t, 7, *n.Tag)
	assert.Equal(t, 5, *orig, "previous tag storage must not be overwritten")
}

func TestApply_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"colour":"red"}`},
		{"read-only id", `{"id":"other"}`},
		{"read-only owner", `{"workspace_id":"other"}`},
		{"read-only timestamp", `{"created_at":"2024-01-01T00:00:00Z"}`},
		{"null on non-nullable", `{"name":null}`},
		{"wrong type", `{"index":"three"}`},
		{"negative index", `{"index":-1}`},
		{"tag above range", `{"tag":4095}`},
		{"empty name", `{"name":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := models.VirtualNetwork{Name: "A"}
			err := Apply(&n, decode[models.VirtualNetwork](t, tt.body))
			assert.ErrorIs(t, err, models.ErrValidationFailed)
			assert.Equal(t, "A", n.Name)
		})
	}
}

func TestApply_NullClearsNullable(t *testing.T) {
	n := models.VirtualNetwork{Name: "A", Tag: models.IntPtr(9)}
	require.NoError(t, Apply(&n, decode[models.VirtualNetwork](t, `{"tag":null}`)))
	assert.Nil(t, n.Tag)
}

func TestApply_EnumField(t *testing.T) {
	w := models.Workspace{Name: "ws"}

	require.NoError(t, Apply(&w, decode[models.Workspace](t, `{"status":"suspended"}`)))
	assert.Equal(t, models.WorkspaceSuspended, w.StatusOrEmpty())

	err := Apply(&w, decode[models.Workspace](t, `{"status":"exploded"}`))
	assert.ErrorIs(t, err, models.ErrValidationFailed)
	assert.Equal(t, models.WorkspaceSuspended, w.StatusOrEmpty())
}

func TestApply_DomainValidators(t *testing.T) {
	pool := models.Range{Min: 100, Max: 200}
	inPool := func(n *models.VirtualNetwork) error {
		if n.Tag != nil && !pool.Contains(*n.Tag) {
			return errors.New("tag outside pool")
		}
		return nil
	}

	n := models.VirtualNetwork{Name: "A"}
	require.NoError(t, Apply(&n, decode[models.VirtualNetwork](t, `{"tag":150}`), inPool))

	err := Apply(&n, decode[models.VirtualNetwork](t, `{"tag":50}`), inPool)
	assert.ErrorIs(t, err, models.ErrValidationFailed)
	assert.Equal(t, 150, *n.Tag)
}

func TestPartial_Decode(t *testing.T) {
	var p Partial[models.Datacenter]
	assert.ErrorIs(t, json.Unmarshal([]byte(`["name"]`), &p), models.ErrValidationFailed)

	p = decode[models.Datacenter](t, `{"name":"x","description":"y"}`)
	assert.True(t, p.Has("name"))
	assert.False(t, p.Has("id"))
	assert.Equal(t, []string{"description", "name"}, p.Fields())
	assert.False(t, p.Empty())
}

func TestFromMap(t *testing.T) {
	p, err := FromMap[models.Workspace](map[string]any{"name": "ws-2", "address": 12})
	require.NoError(t, err)

	w := models.Workspace{Name: "ws-1", Address: 1}
	require.NoError(t, Apply(&w, p))
	assert.Equal(t, "ws-2", w.Name)
	assert.Equal(t, 12, w.Address)
}
