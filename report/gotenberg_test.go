package report

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func fakeGotenberg(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"up"}`)
	})
	mux.HandleFunc("/forms/chromium/convert/html", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("paperWidth") != "8.27" {
			http.Error(w, "bad paper", http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		html, _ := io.ReadAll(file)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(append([]byte("%PDF-"), html...))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRenderHTML(t *testing.T) {
	srv := fakeGotenberg(t, true)
	client := NewClient(srv.URL + "/")

	pdf, err := client.RenderHTML(context.Background(), "<p>hello</p>")
	require.NoError(t, err)
	require.Equal(t, "%PDF-<p>hello</p>", string(pdf))
	require.NoError(t, client.Ping(context.Background()))
}

func TestRenderHTMLReportsRemoteFailure(t *testing.T) {
	srv := fakeGotenberg(t, true)
	client := NewClient(srv.URL, WithPaper(Paper{Width: "11", Height: "17"}))

	_, err := client.RenderHTML(context.Background(), "<p>hello</p>")
	require.ErrorContains(t, err, "status 400")
	require.ErrorContains(t, err, "bad paper")
}

func TestPingRoute(t *testing.T) {
	for _, tc := range []struct {
		healthy bool
		status  int
	}{
		{healthy: true, status: http.StatusOK},
		{healthy: false, status: http.StatusServiceUnavailable},
	} {
		srv := fakeGotenberg(t, tc.healthy)
		r := chi.NewRouter()
		NewHandler(NewClient(srv.URL), slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes(r)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, tc.status, rec.Code)
	}
}
