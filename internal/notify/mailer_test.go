package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentFailedMessage(t *testing.T) {
	m, err := PaymentFailedMessage("a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", m.To)
	assert.Equal(t, "Action requise : problème de paiement SayCal", m.Subject)
	assert.Contains(t, m.HTML, "Paiement échoué")
	assert.Contains(t, m.HTML, `href="https://saycal.app/app/billing"`)
	assert.Contains(t, m.HTML, "suspendu dans 7 jours")
}

func TestMailer_PaymentFailed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	m := NewMailer("re_test", "SayCal <billing@saycal.app>", zerolog.Nop(), WithBaseURL(srv.URL+"/"))
	require.NoError(t, m.PaymentFailed(context.Background(), "pay@example.com"))

	assert.Equal(t, "SayCal <billing@saycal.app>", got["from"])
	assert.Equal(t, []any{"pay@example.com"}, got["to"])
	assert.Equal(t, "Action requise : problème de paiement SayCal", got["subject"])
}

func TestMailer_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"bad from"}`))
	}))
	defer srv.Close()

	m := NewMailer("re_test", "nobody", zerolog.Nop(), WithBaseURL(srv.URL+"/"))
	assert.Error(t, m.PaymentFailed(context.Background(), "pay@example.com"))
}
