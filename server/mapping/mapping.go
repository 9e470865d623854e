// Package mapping holds the static cross-framework lookup table joining CIS
// safeguards to D3FEND countermeasures and ATT&CK techniques. The dataset is
// compiled into the binary and loaded once at process start; the resulting
// table is read-only for the process lifetime.
package mapping

import (
	"bytes"
	_ "embed"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

//go:embed cis_d3fend_mapping.csv
var datasetCSV []byte

// Record maps one CIS safeguard to its defensive and adversary framework
// entries.
type Record struct {
	SafeguardID     string `csv:"cis_safeguard_id"`
	D3FENDID        string `csv:"d3fend_id"`
	D3FENDTechnique string `csv:"d3fend_technique"`
	D3FENDTactic    string `csv:"d3fend_tactic"`
	ATTACKID        string `csv:"attack_id"`
	ATTACKTechnique string `csv:"attack_technique"`
	ATTACKTactic    string `csv:"attack_tactic"`
}

// D3FENDTacticOrder is the canonical ordering of the seven D3FEND tactics.
// Tactics discovered outside this set sort after it, in discovery order.
var D3FENDTacticOrder = []string{
	"Model", "Harden", "Detect", "Isolate", "Deceive", "Evict", "Restore",
}

// ATTACKTacticOrder is the canonical ATT&CK enterprise tactic ordering used
// for the adversary matrix.
var ATTACKTacticOrder = []string{
	"Reconnaissance", "Resource Development", "Initial Access", "Execution",
	"Persistence", "Privilege Escalation", "Defense Evasion", "Credential Access",
	"Discovery", "Lateral Movement", "Collection", "Command and Control",
	"Exfiltration", "Impact",
}

// Table is the immutable in-memory lookup keyed by safeguard identifier.
type Table struct {
	records map[string]Record
}

// Load parses the bundled dataset. Called once at process start.
func Load() (*Table, error) {
	return Parse(datasetCSV)
}

// Parse builds a table from raw CSV bytes.
func Parse(data []byte) (*Table, error) {
	var rows []*Record
	if err := gocsv.Unmarshal(bytes.NewReader(data), &rows); err != nil {
		return nil, errors.Wrap(err, "parse mapping dataset")
	}

	records := make(map[string]Record, len(rows))
	for _, row := range rows {
		id := normalizeSafeguardID(row.SafeguardID)
		if id == "" {
			continue
		}
		rec := *row
		rec.SafeguardID = id
		rec.D3FENDID = strings.TrimSpace(rec.D3FENDID)
		rec.D3FENDTechnique = strings.TrimSpace(rec.D3FENDTechnique)
		rec.D3FENDTactic = strings.TrimSpace(rec.D3FENDTactic)
		rec.ATTACKID = strings.TrimSpace(rec.ATTACKID)
		rec.ATTACKTechnique = strings.TrimSpace(rec.ATTACKTechnique)
		rec.ATTACKTactic = strings.TrimSpace(rec.ATTACKTactic)
		records[id] = rec
	}

	if len(records) == 0 {
		return nil, errors.New("mapping dataset is empty")
	}

	return &Table{records: records}, nil
}

// Lookup returns the mapping record for a safeguard identifier. The
// identifier may carry a "CIS" prefix, which is ignored.
func (t *Table) Lookup(safeguardID string) (Record, bool) {
	rec, ok := t.records[normalizeSafeguardID(safeguardID)]
	return rec, ok
}

// Len returns the number of mapped safeguards.
func (t *Table) Len() int {
	return len(t.records)
}

func normalizeSafeguardID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "CIS")
	return strings.TrimSpace(id)
}
