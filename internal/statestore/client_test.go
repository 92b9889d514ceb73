package statestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/internal/corrid"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

func TestGetUser404ReturnsNilNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	u, err := c.GetUser(context.Background(), 42)
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestGetUserSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"external_id":"tg-1","display_name":"Ada","timezone":"UTC"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	u, err := c.GetUser(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, int64(42), u.ID)
	require.Equal(t, "Ada", u.DisplayName)
}

func TestRequestCarriesCorrelationID(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Correlation-ID")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := corrid.WithCorrelationID(context.Background(), "corr-123")
	_, _ = c.GetUser(ctx, 1)
	require.Equal(t, "corr-123", gotHeader)
}

func TestHTTP4xxDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, WithMaxRetries(3))
	_, err := c.CreateMessage(context.Background(), &coremodels.Message{})
	require.Error(t, err)
	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, ErrKindHTTP4xx, sErr.Kind)
	require.Equal(t, 1, calls)
}

func TestHTTP5xxRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, WithMaxRetries(2))
	_, err := c.CreateMessage(context.Background(), &coremodels.Message{})
	require.Error(t, err)
	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, ErrKindHTTP5xx, sErr.Kind)
	require.Equal(t, 2, calls)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, WithMaxRetries(1))
	for i := 0; i < 5; i++ {
		_, _ = c.CreateMessage(context.Background(), &coremodels.Message{})
	}
	require.Contains(t, c.OpenResources(), "messages")

	_, err := c.CreateMessage(context.Background(), &coremodels.Message{})
	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, ErrKindCircuitOpen, sErr.Kind)
}
