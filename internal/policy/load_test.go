package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CUE(t *testing.T) {
	p, err := Load("testdata/policy.cue")
	require.NoError(t, err)

	assert.Equal(t, []string{"BILLABLEDELEGATE", "REIMBURSEMENTQUEUED"}, p.HiddenCategories)
	assert.Equal(t, "CC", p.ReservedPrefix)
}

func TestLoad_YAML(t *testing.T) {
	p, err := Load("testdata/policy.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"BILLABLEDELEGATE", "REIMBURSEMENTQUEUED"}, p.HiddenCategories)
	assert.Equal(t, "CC", p.ReservedPrefix)
}

func TestLoad_FormatsAgree(t *testing.T) {
	fromCUE, err := Load("testdata/policy.cue")
	require.NoError(t, err)
	fromYAML, err := Load("testdata/policy.yaml")
	require.NoError(t, err)

	assert.Equal(t, fromCUE, fromYAML)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	for _, path := range []string{"testdata/unknown_field.cue", "testdata/unknown_field.yaml"} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoad_CUEWrongType(t *testing.T) {
	_, err := Load("testdata/wrong_type.cue")
	require.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`reserved_prefix = "CC"`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseCUE_Defaults(t *testing.T) {
	p, err := ParseCUE("inline.cue", []byte(`reserved_prefix: "ZZ"`))
	require.NoError(t, err)

	assert.Empty(t, p.HiddenCategories)
	assert.Equal(t, "ZZ", p.ReservedPrefix)
}

func TestParseYAML_BlankCategoryRejected(t *testing.T) {
	_, err := ParseYAML([]byte("hidden_categories: [\"\"]\n"))
	require.Error(t, err)
}
