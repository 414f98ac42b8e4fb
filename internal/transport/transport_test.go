package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoEncodesBodyAndHeaders(t *testing.T) {
	var gotCT, gotID, gotTarget string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		gotID = r.Header.Get(HeaderRequestID)
		gotTarget = r.Header.Get("X-Target")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), nil)
	ctx := WithRequestID(context.Background(), "req-1")
	resp, err := c.Do(ctx, Request{
		Method:      http.MethodPost,
		URL:         srv.URL,
		Header:      http.Header{"X-Target": []string{"op"}},
		ContentType: "application/x-amz-json-1.1",
		Body:        map[string]string{"a": "b"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.Status)
	require.False(t, resp.OK())
	require.Equal(t, "application/x-amz-json-1.1", gotCT)
	require.Equal(t, "req-1", gotID)
	require.Equal(t, "op", gotTarget)
	require.Equal(t, "b", gotBody["a"])

	var out struct{ OK bool }
	require.NoError(t, resp.DecodeJSON(&out))
	require.True(t, out.OK)
}

func TestDoGeneratesRequestID(t *testing.T) {
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(HeaderRequestID)
	}))
	defer srv.Close()

	resp, err := New(srv.Client(), nil).Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Len(t, gotID, 36)
}

func TestDoWrapsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(nil, nil).Do(context.Background(), Request{Method: http.MethodGet, URL: url})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNetwork))
}

func TestDoCanceledContextIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.Client(), nil).Do(ctx, Request{Method: http.MethodGet, URL: srv.URL})
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, err, context.Canceled)
}
