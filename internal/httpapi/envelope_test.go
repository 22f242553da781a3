package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"duka.app/internal/auth"
)

func TestEnvelopePayloadNormalization(t *testing.T) {
	var nilRoles []auth.Role
	cases := []struct {
		name    string
		payload any
		want    string
	}{
		{"string", "User Not Found", `"User Not Found"`},
		{"object", map[string]any{"message": "ok"}, `{"message":"ok"}`},
		{"array", []string{"a"}, `["a"]`},
		{"nil", nil, `[]`},
		{"number", 42, `[]`},
		{"bool", true, `[]`},
		{"nil slice", nilRoles, `[]`},
		{"struct pointer", &auth.Organisation{ID: "org_1"}, ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeEnvelope(rr, http.StatusOK, "success", tc.payload)

			var got struct {
				Status  int             `json:"Status"`
				Message string          `json:"Message"`
				Payload json.RawMessage `json:"Payload"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Status != http.StatusOK || got.Message != "success" {
				t.Fatalf("unexpected envelope %+v", got)
			}
			if tc.want != "" && string(got.Payload) != tc.want {
				t.Fatalf("payload = %s, want %s", got.Payload, tc.want)
			}
			if tc.want == "" && got.Payload[0] != '{' {
				t.Fatalf("expected object payload, got %s", got.Payload)
			}
		})
	}
}
