package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
)

type mailbox struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (m *mailbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.sent = append(m.sent, payload)
	m.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *mailbox) lastCode(t *testing.T) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	text, _ := m.sent[len(m.sent)-1]["text"].(string)
	code := codePattern.FindString(text)
	if code == "" {
		t.Fatalf("no code in mail body %q", text)
	}
	return code
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func startApp(t *testing.T, box *mailbox, overrides map[string]any) string {
	t.Helper()

	provider := httptest.NewServer(box)
	t.Cleanup(provider.Close)

	cfg, err := config.NewViperFromBytes("yaml", []byte(`
otp:
  brand: Acme
  delivery:
    email:
      provider: api
      from_address: no-reply@acme.test
mail:
  api:
    endpoint: `+provider.URL+`
    key: test-key
http_client:
  retry:
    attempts: 1
`), config.WithDefaults(defaults), config.WithOverrides(overrides))
	if err != nil {
		t.Fatal(err)
	}

	a := NewWithConfig(cfg)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a.Serve(l)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Stop(ctx)
	})

	return "http://" + l.Addr().String()
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestOTPRoundTrip(t *testing.T) {
	box := &mailbox{}
	base := startApp(t, box, nil)

	status, body := post(t, base+"/send-otp", `{"email":" Jane@Example.com "}`)
	if status != http.StatusOK || body["success"] != true || body["message"] != "OTP sent successfully" {
		t.Fatalf("send-otp = %d %v", status, body)
	}

	box.mu.Lock()
	sent := box.sent[0]
	box.mu.Unlock()
	if to, _ := sent["to"].([]any); len(to) != 1 || to[0] != "jane@example.com" {
		t.Fatalf("mail to = %v", sent["to"])
	}
	if sent["subject"] != "Your OTP Code - Acme" {
		t.Fatalf("mail subject = %v", sent["subject"])
	}

	code := box.lastCode(t)

	status, body = post(t, base+"/verify-otp", `{"email":"jane@example.com","otp":"000000"}`)
	if status != http.StatusOK || body["success"] != false || body["message"] != "Invalid OTP" {
		t.Fatalf("verify-otp wrong code = %d %v", status, body)
	}

	status, body = post(t, base+"/api/v1/otp/verify", `{"identity":"jane@example.com","code":`+code+`}`)
	if status != http.StatusOK || body["success"] != true || body["message"] != "OTP Verified" {
		t.Fatalf("verify-otp = %d %v", status, body)
	}

	status, body = post(t, base+"/verify-otp", `{"email":"jane@example.com","otp":"`+code+`"}`)
	if status != http.StatusOK || body["success"] != false || body["message"] != "No OTP requested" {
		t.Fatalf("verify-otp replay = %d %v", status, body)
	}
}

func TestOTPRoundTripAsyncDelivery(t *testing.T) {
	box := &mailbox{}
	base := startApp(t, box, map[string]any{"otp.delivery.mode": "async"})

	// the memory bus drops what is published before the consumer subscribes
	deadline := time.Now().Add(5 * time.Second)
	for box.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("async delivery never reached the mail provider")
		}
		status, body := post(t, base+"/send-otp", `{"email":"async@example.com"}`)
		if status != http.StatusOK || body["success"] != true {
			t.Fatalf("send-otp = %d %v", status, body)
		}
		for range 50 {
			if box.count() > 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	status, body := post(t, base+"/verify-otp", `{"email":"async@example.com","otp":"`+box.lastCode(t)+`"}`)
	if status != http.StatusOK || body["success"] != true || body["message"] != "OTP Verified" {
		t.Fatalf("verify-otp = %d %v", status, body)
	}
}

func TestRestartDiscardsChallenges(t *testing.T) {
	box := &mailbox{}
	before := startApp(t, box, nil)

	if status, _ := post(t, before+"/send-otp", `{"email":"restart@example.com"}`); status != http.StatusOK {
		t.Fatalf("send-otp status = %d", status)
	}
	code := box.lastCode(t)

	after := startApp(t, box, nil)

	status, body := post(t, after+"/verify-otp", `{"email":"restart@example.com","otp":"`+code+`"}`)
	if status != http.StatusOK || body["success"] != false || body["message"] != "No OTP requested" {
		t.Fatalf("verify-otp after restart = %d %v", status, body)
	}
}

func TestVerificationTokenWithDefaultTTL(t *testing.T) {
	box := &mailbox{}
	base := startApp(t, box, map[string]any{
		"otp.token.enabled": true,
		"jwt.secret":        strings.Repeat("k", 64),
	})

	if status, _ := post(t, base+"/send-otp", `{"email":"token@example.com"}`); status != http.StatusOK {
		t.Fatalf("send-otp status = %d", status)
	}

	status, body := post(t, base+"/verify-otp", `{"email":"token@example.com","otp":"`+box.lastCode(t)+`"}`)
	data, _ := body["data"].(map[string]any)
	token, _ := data["token"].(string)
	if status != http.StatusOK || body["success"] != true || token == "" {
		t.Fatalf("verify-otp = %d %v", status, body)
	}

	status, body = post(t, base+"/api/v1/otp/token/introspect", `{"token":"`+token+`"}`)
	data, _ = body["data"].(map[string]any)
	if status != http.StatusOK || data["active"] != true || data["identity"] != "token@example.com" {
		t.Fatalf("introspect = %d %v", status, body)
	}
	if exp, _ := data["expires_at"].(float64); exp <= float64(time.Now().Add(10*time.Minute).Unix()) {
		t.Fatalf("token expires at %v, want the 15 minute default", data["expires_at"])
	}
}

func TestSendOTPWithoutIdentity(t *testing.T) {
	base := startApp(t, &mailbox{}, nil)

	status, body := post(t, base+"/send-otp", `{}`)
	if status != http.StatusBadRequest || body["success"] != false || body["message"] != "Email required" {
		t.Fatalf("send-otp = %d %v", status, body)
	}
}

func TestSendNotificationWithoutFirebase(t *testing.T) {
	base := startApp(t, &mailbox{}, nil)

	status, body := post(t, base+"/send-notification", `{"token":"t"}`)
	if status != http.StatusBadRequest || body["error"] != "Missing fields" {
		t.Fatalf("missing fields = %d %v", status, body)
	}

	status, body = post(t, base+"/send-notification", `{"token":"t","title":"Hi","body":"There"}`)
	if status != http.StatusInternalServerError || body["success"] != false || body["error"] != "Failed to send notification" {
		t.Fatalf("send-notification = %d %v", status, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	box := &mailbox{}
	base := startApp(t, box, nil)

	if status, _ := post(t, base+"/send-otp", `{"email":"metrics@example.com"}`); status != http.StatusOK {
		t.Fatalf("send-otp status = %d", status)
	}

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "otpgate_challenges_issued_total") {
		t.Fatal("metrics missing otpgate_challenges_issued_total")
	}
}
