package focus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLlamaCppServer(t *testing.T, status int, reply string, got *chatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLlamaCppClientChat(t *testing.T) {
	var got chatCompletionRequest
	srv := newLlamaCppServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`, &got)

	client, err := NewLlamaCppClient(srv.URL + "/ignored/path")
	require.NoError(t, err)

	var replies []api.ChatResponse
	err = client.Chat(context.Background(), &api.ChatRequest{
		Model: "llava",
		Messages: []api.Message{{
			Role:    "user",
			Content: "where?",
			Images:  []api.ImageData{[]byte("jpegbytes")},
		}},
	}, func(resp api.ChatResponse) error {
		replies = append(replies, resp)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, "hello", replies[0].Message.Content)
	assert.True(t, replies[0].Done)

	assert.Equal(t, "llava", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)

	parts, ok := got.Messages[0].Content.([]any)
	require.True(t, ok)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"]
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString([]byte("jpegbytes")), img)
}

func TestLlamaCppClientPartsReply(t *testing.T) {
	srv := newLlamaCppServer(t, http.StatusOK, `{"choices":[{"message":{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}]}}]}`, nil)
	client, err := NewLlamaCppClient(srv.URL)
	require.NoError(t, err)

	var text string
	err = client.Chat(context.Background(), &api.ChatRequest{Model: "m"}, func(resp api.ChatResponse) error {
		text = resp.Message.Content
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
}

func TestLlamaCppClientErrors(t *testing.T) {
	noop := func(api.ChatResponse) error { return nil }

	srv := newLlamaCppServer(t, http.StatusInternalServerError, "model not loaded", nil)
	client, err := NewLlamaCppClient(srv.URL)
	require.NoError(t, err)
	err = client.Chat(context.Background(), &api.ChatRequest{Model: "m"}, noop)
	assert.ErrorContains(t, err, "status 500")

	srv = newLlamaCppServer(t, http.StatusOK, `{"choices":[]}`, nil)
	client, err = NewLlamaCppClient(srv.URL)
	require.NoError(t, err)
	err = client.Chat(context.Background(), &api.ChatRequest{Model: "m"}, noop)
	assert.ErrorContains(t, err, "no choices")

	_, err = NewLlamaCppClient("unix:///tmp/llama.sock")
	assert.Error(t, err)
}

func TestVisionFinderWithLlamaCpp(t *testing.T) {
	reply := `{"choices":[{"message":{"content":"{\"primary\":{\"label\":\"cat\",\"confidence\":0.8,\"box\":{\"x\":0.1,\"y\":0.2,\"w\":0.2,\"h\":0.2}}}"}}]}`
	srv := newLlamaCppServer(t, http.StatusOK, reply, nil)
	client, err := NewLlamaCppClient(srv.URL)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	finder := NewVisionFinderWithClient(client, VisionConfig{Model: "m", SendSize: 32}, logger)

	fx, fy, err := finder.FindFocus(context.Background(), createTestImage(64, 64, image.Rectangle{}), 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, fx, 1e-9)
	assert.InDelta(t, 0.4, fy, 1e-9)
}
