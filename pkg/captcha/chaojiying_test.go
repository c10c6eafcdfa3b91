package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChaojiyingClient_RequiresCredentials(t *testing.T) {
	_, err := NewChaojiyingClient("", "p", "1")
	assert.Error(t, err)

	_, err = NewChaojiyingClient("u", "p", "")
	assert.Error(t, err)

	c, err := NewChaojiyingClient("u", "secret", "1")
	require.NoError(t, err)
	assert.NotContains(t, c.String(), "secret")
}

func TestChaojiyingClient_Recognize(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Firefox")

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostForm.Get("user"))
		assert.Equal(t, "hash", r.PostForm.Get("pass2"))
		assert.Equal(t, "96001", r.PostForm.Get("softid"))
		assert.Equal(t, DefaultCodeType, r.PostForm.Get("codetype"))
		assert.Equal(t, "4", r.PostForm.Get("len_min"))
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), r.PostForm.Get("file_base64"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_no":0,"err_str":"OK","pic_id":"9120","pic_str":"ab3d","md5":"x"}`))
	}))
	defer srv.Close()

	c, err := NewChaojiyingClient("alice", "hash", "96001", WithEndpoint(srv.URL))
	require.NoError(t, err)

	rec, err := c.Recognize(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, Recognition{Text: "ab3d", ID: "9120"}, rec)
}

func TestChaojiyingClient_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
	}{
		{name: "error number", status: http.StatusOK, body: `{"err_no":-1005,"err_str":"no points left"}`, wantCode: -1005},
		{name: "http status", status: http.StatusBadGateway, body: "upstream down", wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewChaojiyingClient("u", "p", "1", WithEndpoint(srv.URL))
			require.NoError(t, err)

			_, err = c.Recognize(context.Background(), []byte("img"))
			var svcErr *ServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tt.wantCode, svcErr.Code)
		})
	}
}

func TestChaojiyingClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewChaojiyingClient("u", "p", "1",
		WithEndpoint(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = c.Recognize(context.Background(), []byte("img"))
	require.Error(t, err)

	var svcErr *ServiceError
	assert.False(t, errors.As(err, &svcErr))
}

func TestChaojiyingClient_MalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	c, err := NewChaojiyingClient("u", "p", "1", WithEndpoint(srv.URL))
	require.NoError(t, err)

	_, err = c.Recognize(context.Background(), []byte("img"))
	assert.ErrorContains(t, err, "failed to decode response")
}
