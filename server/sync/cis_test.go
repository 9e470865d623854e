package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCISControl(t *testing.T) {
	cases := []struct {
		name        string
		description string
		want        string
	}{
		{"CIS - 5.2 Ensure password policy is enforced", "", "5.2"},
		{"CIS 2.3.1 Disable guest account", "", "2.3.1"},
		{"CIS: 18.9.4 Configure audit log retention", "", "18.9.4"},
		{"Benchmark 1.1.2 Ensure separate partition for /tmp", "", "1.1.2"},
		{"Benchmark: 6.4 Require MFA for remote access", "", "6.4"},
		{"3.11 Encrypt sensitive data at rest", "", "3.11"},
		// tag matching is case insensitive
		{"cis - 5.2 ensure password policy", "", "5.2"},
		{"benchmark 1.1.1 check", "", "1.1.1"},
		// untagged names fall back to a tagged description
		{"Screen lock", "Aligned with CIS 4.7", "4.7"},
		{"Full disk encryption enabled", "", ""},
		{"Check item 42", "", ""},
		// a bare version-like number inside the name is not a control
		{"Ensure OpenSSL 1.1.1 is patched", "", ""},
		// a bare leading number in the description does not count
		{"Screen lock", "2.1 somewhere", ""},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCISControl(tt.name, tt.description))
		})
	}
}
