package fsmem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileNotExists(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "fs.yaml"))
	require.NoError(t, err)
	assert.False(t, s.Dirty())
	assert.False(t, s.Section("heat").Has("sPrec"))
}

func TestOpen_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heat: ["), 0644))

	s, err := Open(path)
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestSection_Defaults(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	sec := s.Section("heat")

	assert.True(t, sec.SetDefault("sPrec", 11))
	assert.False(t, sec.SetDefault("sPrec", 9), "existing values are kept")
	assert.Equal(t, uint8(11), sec.Uint8("sPrec"))
	assert.True(t, s.Dirty())
	assert.Equal(t, []string{"sPrec"}, sec.Keys())
	assert.Equal(t, "heat", sec.Name())
}

func TestSection_NumberConversions(t *testing.T) {
	s, _ := Open("")
	sec := s.Section("heat")

	sec.Set("f", float32(-2.5))
	sec.Set("i", 1)
	sec.Set("neg", -3)
	sec.Set("big", 1000)
	sec.Set("str", "x")

	assert.Equal(t, float32(-2.5), sec.Float32("f"))
	assert.Equal(t, float32(1), sec.Float32("i"))
	assert.Equal(t, uint8(1), sec.Uint8("i"))
	assert.Equal(t, uint8(0), sec.Uint8("neg"))
	assert.Equal(t, uint8(255), sec.Uint8("big"))
	assert.Equal(t, uint8(0), sec.Uint8("str"))
	assert.Equal(t, float32(0), sec.Float32("missing"))
}

func TestStore_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fs.yaml")

	s, err := Open(path)
	require.NoError(t, err)
	sec := s.Section("heat")
	sec.Set("sCorr", float32(1.5))
	sec.Set("sPrec", uint8(10))
	sec.Set("hOff", uint8(0))
	require.NoError(t, s.Save())
	assert.False(t, s.Dirty())

	reloaded, err := Open(path)
	require.NoError(t, err)
	rsec := reloaded.Section("heat")
	assert.Equal(t, float32(1.5), rsec.Float32("sCorr"))
	assert.Equal(t, uint8(10), rsec.Uint8("sPrec"))
	assert.True(t, rsec.Has("hOff"))
	assert.Equal(t, uint8(0), rsec.Uint8("hOff"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_SaveSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing written for an unchanged store")
}
