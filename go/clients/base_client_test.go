package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			assert.Equal(t, "triviacast", r.Header.Get("X-Client"))
			body, _ := io.ReadAll(r.Body)
			_, _ = w.Write(body)
		default:
			http.Error(w, "no such game", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewBaseClient(srv.URL)
	c.SetHTTPClient(srv.Client())
	c.SetHeader("X-Client", "triviacast")
	ctx := context.Background()

	body, err := c.Post(ctx, "/echo", strings.NewReader("ping"))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(body))

	_, err = c.Get(ctx, "/missing")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Contains(t, statusErr.Body, "no such game")
}
