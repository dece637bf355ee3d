package llm_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesilico/trf-intake/internal/llm"
	"github.com/genesilico/trf-intake/internal/schema"
)

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Load()
	require.NoError(t, err)
	return sch
}

func TestNormalizeExtractionJSON(t *testing.T) {
	sch := loadSchema(t)

	t.Run("object shape passes through", func(t *testing.T) {
		raw := []byte(`{"patientID": {"value": "P-1", "confidence": 0.9}}`)
		out, dropped, err := llm.NormalizeExtractionJSON(raw, sch, slog.Default())
		require.NoError(t, err)
		assert.Empty(t, dropped)

		vals, err := llm.ParseExtraction(out)
		require.NoError(t, err)
		require.Contains(t, vals, "patientID")
		assert.Equal(t, "P-1", vals["patientID"].Value)
		require.NotNil(t, vals["patientID"].Confidence)
		assert.Equal(t, 0.9, *vals["patientID"].Confidence)
	})

	t.Run("bare string is coerced", func(t *testing.T) {
		raw := []byte(`{"patientID": "P-2"}`)
		out, _, err := llm.NormalizeExtractionJSON(raw, sch, slog.Default())
		require.NoError(t, err)

		vals, err := llm.ParseExtraction(out)
		require.NoError(t, err)
		assert.Equal(t, "P-2", vals["patientID"].Value)
		assert.Nil(t, vals["patientID"].Confidence)
	})

	t.Run("unknown keys and nulls are dropped", func(t *testing.T) {
		raw := []byte(`{"made.up": "x", "patientID": null, "patientInformation.age": 42}`)
		out, dropped, err := llm.NormalizeExtractionJSON(raw, sch, slog.Default())
		require.NoError(t, err)
		assert.Len(t, dropped, 2)

		vals, err := llm.ParseExtraction(out)
		require.NoError(t, err)
		assert.NotContains(t, vals, "made.up")
		assert.NotContains(t, vals, "patientID")
		assert.Equal(t, "42", vals["patientInformation.age"].Value)
	})

	t.Run("confidence is clamped", func(t *testing.T) {
		raw := []byte(`{"patientID": {"value": "P-3", "confidence": 3.5}}`)
		out, _, err := llm.NormalizeExtractionJSON(raw, sch, slog.Default())
		require.NoError(t, err)

		vals, err := llm.ParseExtraction(out)
		require.NoError(t, err)
		assert.Equal(t, 1.0, *vals["patientID"].Confidence)
	})

	t.Run("non-json fails", func(t *testing.T) {
		_, _, err := llm.NormalizeExtractionJSON([]byte("sorry, no"), sch, slog.Default())
		assert.Error(t, err)
	})
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with trailing prose stripped by trim", "```json\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(llm.StripCodeFence([]byte(tt.in))))
		})
	}
}

func TestBuildExtractionJSONSchema(t *testing.T) {
	sch := loadSchema(t)
	m := llm.BuildExtractionJSONSchema(sch.Fields())

	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, props, len(sch.Fields()))

	// absence must stay expressible: no top-level required list
	_, hasRequired := m["required"]
	assert.False(t, hasRequired)

	field, ok := props["patientInformation.gender"].(map[string]any)
	require.True(t, ok)
	inner, ok := field["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, inner, "value")
	assert.Contains(t, inner, "confidence")
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	sch := loadSchema(t)
	m := llm.BuildExtractionJSONSchema(sch.Fields())

	good := []byte(`{"patientID": {"value": "P-1", "confidence": 0.8}}`)
	assert.NoError(t, llm.ValidateJSONAgainstSchema(m, good))

	missingValue := []byte(`{"patientID": {"confidence": 0.8}}`)
	assert.Error(t, llm.ValidateJSONAgainstSchema(m, missingValue))
}

func TestValidateFieldObject(t *testing.T) {
	sch := loadSchema(t)
	compiled, err := llm.CompileSchema(llm.BuildExtractionJSONSchema(sch.Fields()))
	require.NoError(t, err)

	conf := 0.9
	assert.NoError(t, llm.ValidateFieldObject(compiled,
		"patientInformation.gender", llm.FieldValue{Value: "Female", Confidence: &conf}))
	assert.Error(t, llm.ValidateFieldObject(compiled,
		"patientInformation.gender", llm.FieldValue{Value: "Banana"}))
	assert.Error(t, llm.ValidateFieldObject(compiled,
		"no.such.field", llm.FieldValue{Value: "x"}))
}
