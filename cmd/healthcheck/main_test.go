package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddr(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "", want: "127.0.0.1:3001"},
		{raw: "0.0.0.0:3002", want: "127.0.0.1:3002"},
		{raw: ":3002", want: "127.0.0.1:3002"},
		{raw: "10.0.0.5:3001", want: "10.0.0.5:3001"},
		{raw: "garbage", want: "127.0.0.1:3001"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeAddr(tt.raw), tt.raw)
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		service string
		wantErr bool
	}{
		{name: "healthy", status: http.StatusOK, body: `{"status":"healthy","service":"issuance-service"}`},
		{name: "expected service", status: http.StatusOK, body: `{"status":"healthy","service":"verification-service"}`, service: "verification-service"},
		{name: "wrong service", status: http.StatusOK, body: `{"status":"healthy","service":"issuance-service"}`, service: "verification-service", wantErr: true},
		{name: "degraded", status: http.StatusOK, body: `{"status":"degraded"}`, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, body: `{"status":"healthy"}`, wantErr: true},
		{name: "not json", status: http.StatusOK, body: `ok`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := probe(context.Background(), srv.Client(), srv.URL+"/health", tt.service)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/health"
	srv.Close()

	require.Error(t, probe(context.Background(), &http.Client{Timeout: time.Second}, url, ""))
}
