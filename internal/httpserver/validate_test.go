package httpserver

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type sampleRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=64"`
	Replicas int    `json:"replicas" validate:"omitempty,gte=1,lte=20"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid object", `{"name":"demo"}`, false},
		{"empty body", ``, true},
		{"invalid json", `{bad}`, true},
		{"unknown field", `{"name":"demo","extra":1}`, true},
		{"trailing data", `{"name":"demo"}{"name":"again"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var dst sampleRequest
			err := Decode(r, &dst)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       sampleRequest
		wantField string
	}{
		{"valid", sampleRequest{Name: "demo", Replicas: 1}, ""},
		{"missing name", sampleRequest{Replicas: 1}, "name"},
		{"replicas too high", sampleRequest{Name: "demo", Replicas: 50}, "replicas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.req)
			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("Validate() = %v, want none", errs)
				}
				return
			}
			if len(errs) == 0 || errs[0].Field != tt.wantField {
				t.Errorf("Validate() = %v, want field %q", errs, tt.wantField)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Name", "name"},
		{"VirtualHost", "virtual_host"},
		{"GitURL", "git_u_r_l"},
		{"replicas", "replicas"},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
