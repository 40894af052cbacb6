package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/starford/postdesk/internal"
	"github.com/starford/postdesk/internal/session"
)

func dashboardConfig(t *testing.T, h http.Handler) *internal.Config {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := internal.NewDefaultConfig()
	cfg.App.HTTP.Host = host
	cfg.App.HTTP.Port, _ = strconv.Atoi(port)
	cfg.Dashboard.Mode = internal.AuthModeToken
	cfg.Dashboard.Token = "secret"
	return cfg
}

func TestCallDashboard(t *testing.T) {
	var gotAuth, gotMethod string
	cfg := dashboardConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth, gotMethod = r.Header.Get("Authorization"), r.Method
		switch r.URL.Path {
		case "/api/sessions":
			_, _ = w.Write([]byte(`[{"id":"s1","postId":"p1","uri":"builder:/a.mdx"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}
	}))

	var infos []session.Info
	if err := callDashboard(context.Background(), cfg, http.MethodGet, "/api/sessions", &infos); err != nil {
		t.Fatalf("callDashboard: %v", err)
	}
	if len(infos) != 1 || infos[0].PostID != "p1" {
		t.Errorf("infos = %+v", infos)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}

	err := callDashboard(context.Background(), cfg, http.MethodDelete, "/api/sessions/zz", nil)
	if err == nil || !strings.Contains(err.Error(), "not found") || gotMethod != http.MethodDelete {
		t.Errorf("close unknown = %v (method %s)", err, gotMethod)
	}
}
