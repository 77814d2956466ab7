package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGatewayClient_Notify(t *testing.T) {
	var got sendMessageRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/send" {
			t.Fatalf("path = %s, want /api/send", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewGatewayClient(ts.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client.Notify(ctx, 42, "✅ Ваша выплата 40 Gold подтверждена!")

	if got.ActorID != 42 {
		t.Fatalf("actor id = %d, want 42", got.ActorID)
	}
	if got.Text == "" {
		t.Fatalf("text must not be empty")
	}
}

func TestGatewayClient_DeliveryFailureIsSwallowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	client := NewGatewayClient(ts.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Не должно ни паниковать, ни возвращать ошибку наружу.
	client.Notify(ctx, 7, "сообщение")
}
