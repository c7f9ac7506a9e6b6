package approval

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/model"
)

func TestDecodeSelectsVariant(t *testing.T) {
	c, err := Decode(TypeEdit, []byte(`{"dispatch_date":"2024-01-01"}`))
	require.NoError(t, err)
	edit, ok := c.(EditChanges)
	require.True(t, ok)
	require.NotNil(t, edit.DispatchDate)
	assert.Equal(t, "2024-01-01", *edit.DispatchDate)

	c, err = Decode(TypeDeletion, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeDeletion, c.Type())

	c, err = Decode(TypeCreation, []byte("null"))
	require.NoError(t, err)
	assert.Equal(t, TypeCreation, c.Type())
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		raw  string
	}{
		{"field of another variant", TypeDeletion, `{"dispatch_date":"2024-01-01"}`},
		{"unknown field", TypeEdit, `{"is_approved":true}`},
		{"empty edit", TypeEdit, `{}`},
		{"bad date", TypeEdit, `{"dispatch_date":"01/02/2024"}`},
		{"bad so id", TypeCreation, `{"so_id":"SO-1"}`},
		{"blank sequence", TypeEdit, `{"sequence":"  "}`},
		{"sequence and auto", TypeCreation, `{"sequence":"001-PUMPS","auto_sequence":true}`},
		{"not an object", TypeEdit, `["sequence"]`},
		{"unknown type", Type("MERGE"), `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.typ, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.KindValidation))
		})
	}
}

func TestApplyEdit(t *testing.T) {
	soID := uuid.New()
	m := &model.Machine{
		Location: "Dock 1",
		Sequence: "001-PUMPS",
		Metadata: datatypes.JSONMap{"colour": "red", "serial": "X1"},
	}
	raw := `{"dispatch_date":"2024-01-01","so_id":"` + soID.String() + `","sequence":"005-PUMPS","metadata":{"colour":"blue","serial":null}}`
	c, err := Decode(TypeEdit, []byte(raw))
	require.NoError(t, err)

	out, err := Apply(c, m)
	require.NoError(t, err)
	assert.True(t, out.SequenceChanged)
	assert.False(t, out.Delete)
	assert.Equal(t, "2024-01-01", m.DispatchDateString())
	assert.Equal(t, soID, *m.SoID)
	assert.Equal(t, "005-PUMPS", m.Sequence)
	assert.Equal(t, "Dock 1", m.Location)
	assert.Equal(t, datatypes.JSONMap{"colour": "blue"}, m.Metadata)
}

func TestApplyCreationAndDeletion(t *testing.T) {
	m := &model.Machine{}
	c, err := Decode(TypeCreation, []byte(`{"location":"Yard","images":["a.png"]}`))
	require.NoError(t, err)
	out, err := Apply(c, m)
	require.NoError(t, err)
	assert.False(t, out.SequenceChanged)
	assert.Equal(t, "Yard", m.Location)
	assert.Equal(t, []string{"a.png"}, model.StringList(m.Images))

	del, err := Decode(TypeDeletion, []byte(`{"reason":"scrapped"}`))
	require.NoError(t, err)
	out, err = Apply(del, m)
	require.NoError(t, err)
	assert.True(t, out.Delete)
}

func TestEncodeRoundTripKeepsVariantFields(t *testing.T) {
	loc := "Dock 4"
	raw, err := Encode(EditChanges{Location: &loc})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, map[string]interface{}{"location": "Dock 4"}, fields)
}

func TestWithSequence(t *testing.T) {
	c, ok := WithSequence(CreationChanges{Location: "Dock 1", AutoSequence: true}, "HAND-1")
	require.True(t, ok)
	assert.Equal(t, CreationChanges{Location: "Dock 1", Sequence: "HAND-1"}, c)

	loc := "Dock 2"
	c, ok = WithSequence(EditChanges{Location: &loc}, "HAND-2")
	require.True(t, ok)
	edit := c.(EditChanges)
	require.NotNil(t, edit.Sequence)
	assert.Equal(t, "HAND-2", *edit.Sequence)
	assert.Equal(t, &loc, edit.Location)

	_, ok = WithSequence(DeletionChanges{Reason: "scrapped"}, "HAND-3")
	assert.False(t, ok)
}
