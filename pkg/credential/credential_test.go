package credential

import (
	"strings"
	"testing"
	"time"

	"github.com/runwhale/runwhale/internal/random"
)

func TestFormatParseKey_RoundTrip(t *testing.T) {
	keyID := random.String(16)
	secret := random.String(32)

	formatted := FormatKey(keyID, secret)
	if !strings.HasPrefix(formatted, "rw_prod_") {
		t.Fatalf("FormatKey = %q, want rw_prod_ prefix", formatted)
	}

	gotID, gotSecret, err := ParseKey(formatted)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if gotID != keyID || gotSecret != secret {
		t.Fatalf("ParseKey = (%q, %q), want (%q, %q)", gotID, gotSecret, keyID, secret)
	}
}

func TestParseKey_Rejections(t *testing.T) {
	valid := FormatKey(random.String(16), random.String(32))

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"wrong prefix", "sk_prod_" + valid[len("rw_prod_"):]},
		{"missing dot", strings.Replace(valid, ".", "x", 1)},
		{"short key id", "rw_prod_short." + random.String(32)},
		{"short secret", "rw_prod_" + random.String(16) + "." + random.String(31)},
		{"illegal character", "rw_prod_" + random.String(15) + "!." + random.String(32)},
		{"trailing garbage", valid + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseKey(tt.raw); err == nil {
				t.Errorf("ParseKey(%q) expected error", tt.raw)
			}
		})
	}
}

func TestAPIKey_Valid(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		key     APIKey
		wantErr error
	}{
		{"live key", APIKey{}, nil},
		{"revoked", APIKey{RevokedAt: &past}, ErrRevoked},
		{"expired", APIKey{ExpiresAt: &past}, ErrExpired},
		{"not yet expired", APIKey{ExpiresAt: &future}, nil},
		{"revoked wins over expiry", APIKey{RevokedAt: &past, ExpiresAt: &past}, ErrRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.key.Valid(now); err != tt.wantErr {
				t.Errorf("Valid() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIKey_HasScopes(t *testing.T) {
	tests := []struct {
		name     string
		held     []string
		required []string
		want     bool
	}{
		{"exact match", []string{ScopeEnvRead}, []string{ScopeEnvRead}, true},
		{"superset", []string{ScopeEnvRead, ScopeEnvWrite}, []string{ScopeEnvRead}, true},
		{"missing one", []string{ScopeEnvRead}, []string{ScopeEnvRead, ScopeDeployWrite}, false},
		{"admin passes all", []string{ScopeAdmin}, []string{ScopeDeployWrite, ScopeLogsRead}, true},
		{"empty required", []string{}, nil, true},
		{"no scopes held", nil, []string{ScopeEnvRead}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := APIKey{Scopes: tt.held}
			if got := k.HasScopes(tt.required); got != tt.want {
				t.Errorf("HasScopes(%v) with %v = %v, want %v", tt.required, tt.held, got, tt.want)
			}
		})
	}
}

func TestValidateScopes(t *testing.T) {
	if err := ValidateScopes([]string{ScopeEnvRead, ScopeAdmin}); err != nil {
		t.Errorf("ValidateScopes(valid) = %v", err)
	}
	if err := ValidateScopes([]string{"env.read", "root"}); err == nil {
		t.Errorf("ValidateScopes(unknown) expected error")
	}
}
