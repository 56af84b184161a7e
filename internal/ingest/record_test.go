package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_MarshalFlat(t *testing.T) {
	rec := NewRecord()
	rec.Set(FieldName, "Sekolah \"Satu\"")
	rec.Set(FieldCode, "A1")
	rec.Set(FieldCity, "")
	rec.SetExtra("zeta", "z")
	rec.SetExtra("alpha", "a")
	rec.SetExtra("Code", "ignored")

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"A1","name":"Sekolah \"Satu\"","alpha":"a","zeta":"z"}`, string(data))
	assert.Equal(t, `{"code":"A1","name":"Sekolah \"Satu\"","alpha":"a","zeta":"z"}`, string(data))
}

func TestRecord_UnmarshalClassifies(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"CODE":" A1 ","name":"Satu","latitude":3.25,"note":"x","flag":true,"gone":null}`), &rec)
	require.NoError(t, err)

	assert.Equal(t, "A1", rec.Get(FieldCode))
	assert.Equal(t, "Satu", rec.Get(FieldName))
	assert.Equal(t, "3.25", rec.Get(FieldLatitude))
	assert.Equal(t, map[string]string{"note": "x", "flag": "true", "gone": ""}, rec.Extra)
}

func TestRecord_Missing(t *testing.T) {
	rec := NewRecord()
	rec.Set(FieldCode, "A1")
	rec.Set(FieldName, " ")
	rec.Set(FieldState, "Johor")

	assert.Equal(t, []Field{FieldName, FieldLevel, FieldCategory}, rec.Missing())
	assert.True(t, rec.Identified())
}
