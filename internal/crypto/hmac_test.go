package crypto

import "testing"

func TestWebhookVerifyRoundTrip(t *testing.T) {
	v := NewWebhookVerifier("shared-secret")
	body := []byte(`{"marketId":"m-1","title":"Will it rain tomorrow?"}`)

	sig := v.Sign(body)
	if !v.Verify(body, sig) {
		t.Fatal("Verify rejected a signature produced by Sign")
	}
	if !v.Verify(body, "sha256="+sig) {
		t.Fatal("Verify rejected a sha256= prefixed signature")
	}
}

func TestWebhookVerifyRejects(t *testing.T) {
	v := NewWebhookVerifier("shared-secret")
	body := []byte(`{"marketId":"m-1"}`)
	sig := v.Sign(body)

	tests := []struct {
		name string
		body []byte
		sig  string
	}{
		{"tampered body", []byte(`{"marketId":"m-2"}`), sig},
		{"wrong secret", body, NewWebhookVerifier("other").Sign(body)},
		{"garbage signature", body, "not-hex!"},
		{"empty signature", body, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v.Verify(tt.body, tt.sig) {
				t.Fatal("Verify accepted an invalid signature")
			}
		})
	}
}
