package generation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.GenerationConfig{Endpoint: url}, zap.NewNop())
}

func TestClientSubmitsMultipartFiles(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(f)
			f.Close()
			received = append(received, fh.Filename+":"+fh.Header.Get("Content-Type")+":"+string(data))
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"success","file_urls":{"glb":["https://x/a.glb"],"usdz":"https://x/a.usdz"}}`)
	}))
	defer srv.Close()

	req, err := NewRequest([]Image{
		{Data: []byte("front"), Filename: "front.jpg"},
		{Data: []byte("back"), ContentType: "image/png", Filename: "back.png"},
		{Data: []byte("left")},
		{Data: []byte("right")},
	})
	require.NoError(t, err)

	raw, err := newTestClient(srv.URL).Submit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"front.jpg:image/jpeg:front",
		"back.png:image/png:back",
		"image_2.jpg:image/jpeg:left",
		"image_3.jpg:image/jpeg:right",
	}, received)

	res, err := raw.Result()
	require.NoError(t, err)
	assert.Equal(t, "https://x/a.glb", res.ModelURL)
	assert.Equal(t, "https://x/a.usdz", res.USDZURL)
}

func TestClientErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{name: "server error status", status: http.StatusBadGateway, body: "upstream down", kind: KindTransport},
		{name: "undecodable body", status: http.StatusOK, body: "<html>oops</html>", kind: KindApplicationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			req, _ := NewRequest([]Image{{Data: []byte("x")}})
			_, err := newTestClient(srv.URL).Submit(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, Classify(err))
		})
	}
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	req, _ := NewRequest([]Image{{Data: []byte("x")}})
	_, err := newTestClient(url).Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrTransport)
}

func TestClientDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, _ := NewRequest([]Image{{Data: []byte("x")}})
	_, err := newTestClient(srv.URL).Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientRejectsInvalidRequest(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Submit(context.Background(), &Request{Images: make([]Image, 2)})
	assert.ErrorIs(t, err, ErrInvalidInputCount)
}
