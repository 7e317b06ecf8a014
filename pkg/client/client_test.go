package client_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"testing"
	"time"

	backend "maize-backend/internal/api"
	"maize-backend/internal/core"
	"maize-backend/pkg/client"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClassifier struct {
	probs []float32
}

func (f *fixedClassifier) Infer(data []float32) ([]float32, error) {
	out := make([]float32, len(f.probs))
	copy(out, f.probs)
	return out, nil
}

func (f *fixedClassifier) Release() {}

func startServer(t *testing.T, probs []float32) *httptest.Server {
	t.Helper()

	handle, err := core.NewHandle(&fixedClassifier{probs: probs}, core.DefaultMetadata())
	require.NoError(t, err)
	t.Cleanup(handle.Close)

	service := backend.NewBackendService(core.NewPredictionService(handle, 10<<20, time.Second), "test")
	router := chi.NewRouter()
	service.AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func leafPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 170, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestClientHealth(t *testing.T) {
	server := startServer(t, []float32{1, 0, 0, 0})
	c := client.New(server.URL)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.Model.Loaded)
	assert.Equal(t, len(core.DefaultClasses), health.Model.Classes)
}

func TestClientClasses(t *testing.T) {
	server := startServer(t, []float32{1, 0, 0, 0})
	c := client.New(server.URL)

	classes, err := c.Classes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.DefaultClasses, classes.Classes)
	assert.Equal(t, len(core.DefaultClasses), classes.Count)
}

func TestClientPredict(t *testing.T) {
	server := startServer(t, []float32{0.05, 0.8, 0.1, 0.05})
	c := client.New(server.URL)

	// The client sniffs the part content type from the bytes, so a PNG
	// passes the server's media type check without the caller naming it.
	pred, err := c.Predict(context.Background(), "leaf.png", leafPNG(t))
	require.NoError(t, err)

	assert.True(t, pred.Success)
	assert.Equal(t, core.DefaultClasses[1], pred.Prediction)
	assert.Equal(t, 0.8, pred.Confidence)
	assert.Equal(t, "leaf.png", pred.Filename)
}

func TestClientPredictRejected(t *testing.T) {
	server := startServer(t, []float32{1, 0, 0, 0})
	c := client.New(server.URL)

	_, err := c.Predict(context.Background(), "notes.txt", []byte("plain text, not an image"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClientServerDown(t *testing.T) {
	server := startServer(t, []float32{1, 0, 0, 0})
	url := server.URL
	server.Close()

	c := client.New(url)
	_, err := c.Health(context.Background())
	assert.Error(t, err)
}
