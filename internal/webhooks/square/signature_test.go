package squarewebhook

import "testing"

func TestVerifySignature(t *testing.T) {
	const (
		key = "sig-key"
		url = "https://api.example.com/api/v1/webhooks/square"
	)
	body := []byte(`{"event_id":"evt_1","type":"payment.updated"}`)
	signature := Sign(key, url, body)

	if !VerifySignature(key, url, body, signature) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(key, url, []byte(`{"event_id":"evt_2"}`), signature) {
		t.Fatal("tampered body must not verify")
	}
	if VerifySignature(key, url+"/other", body, signature) {
		t.Fatal("different notification url must not verify")
	}
	if VerifySignature("other-key", url, body, signature) {
		t.Fatal("different key must not verify")
	}
	if VerifySignature("", url, body, signature) || VerifySignature(key, url, body, "") {
		t.Fatal("empty key or header must not verify")
	}
}
