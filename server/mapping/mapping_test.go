package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBundledDataset(t *testing.T) {
	tbl, err := Load()
	require.NoError(t, err)
	require.NotZero(t, tbl.Len())

	rec, ok := tbl.Lookup("5.2")
	require.True(t, ok)
	assert.Equal(t, "D3-SPP", rec.D3FENDID)
	assert.Equal(t, "Harden", rec.D3FENDTactic)
	assert.Equal(t, "T1110", rec.ATTACKID)
	assert.Equal(t, "Brute Force", rec.ATTACKTechnique)
	assert.Equal(t, "Credential Access", rec.ATTACKTactic)

	// every record must name a D3FEND and an ATT&CK entry
	for id := range tbl.records {
		rec, ok := tbl.Lookup(id)
		require.True(t, ok)
		assert.NotEmpty(t, rec.D3FENDID, "safeguard %s", id)
		assert.NotEmpty(t, rec.D3FENDTactic, "safeguard %s", id)
		assert.NotEmpty(t, rec.ATTACKID, "safeguard %s", id)
		assert.NotEmpty(t, rec.ATTACKTechnique, "safeguard %s", id)
		assert.NotEmpty(t, rec.ATTACKTactic, "safeguard %s", id)
	}
}

func TestLookupNormalizesPrefix(t *testing.T) {
	tbl, err := Load()
	require.NoError(t, err)

	direct, ok := tbl.Lookup("1.1")
	require.True(t, ok)
	prefixed, ok := tbl.Lookup("CIS1.1")
	require.True(t, ok)
	spaced, ok := tbl.Lookup("  1.1 ")
	require.True(t, ok)

	assert.Equal(t, direct, prefixed)
	assert.Equal(t, direct, spaced)
}

func TestLookupUnknownSafeguard(t *testing.T) {
	tbl, err := Load()
	require.NoError(t, err)

	_, ok := tbl.Lookup("99.99")
	assert.False(t, ok)
}

func TestParseRejectsEmptyDataset(t *testing.T) {
	_, err := Parse([]byte("cis_safeguard_id,d3fend_id,d3fend_technique,d3fend_tactic,attack_id,attack_technique,attack_tactic\n"))
	require.Error(t, err)
}

func TestParseTrimsFields(t *testing.T) {
	data := []byte("cis_safeguard_id,d3fend_id,d3fend_technique,d3fend_tactic,attack_id,attack_technique,attack_tactic\n" +
		" 2.7 , D3-EAL , Executable Allowlisting , Harden , T1059 , Command and Scripting Interpreter , Execution \n")
	tbl, err := Parse(data)
	require.NoError(t, err)

	rec, ok := tbl.Lookup("2.7")
	require.True(t, ok)
	assert.Equal(t, "D3-EAL", rec.D3FENDID)
	assert.Equal(t, "Executable Allowlisting", rec.D3FENDTechnique)
}
