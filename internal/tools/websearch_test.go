package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate-backend/internal/models"
)

type recordingSink struct {
	texts  []string
	done   bool
	errMsg string
	status int
}

func (s *recordingSink) Metadata(models.MetadataFrame) error { return nil }
func (s *recordingSink) Text(content string) error {
	s.texts = append(s.texts, content)
	return nil
}
func (s *recordingSink) Done() error { s.done = true; return nil }
func (s *recordingSink) Error(message string, status int) error {
	s.errMsg = message
	s.status = status
	return nil
}

func searchInput(sink *recordingSink) Input {
	return Input{
		Settings: models.ChatSettings{Model: "mistralai/mistral-small"},
		Turns:    []models.ChatTurn{{Role: models.RoleUser, Content: "latest nuclei release?"}},
		Sink:     sink,
	}
}

func TestWebSearch_StreamsAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistralai/mistral-small", req.Model)
		require.Len(t, req.Messages, 1)

		fmt.Fprint(w, `{"answer":"v3.2 shipped last week"}`)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	require.NoError(t, NewWebSearch(srv.URL, "sk").Execute(context.Background(), searchInput(sink)))

	assert.Equal(t, []string{"v3.2 shipped last week"}, sink.texts)
	assert.True(t, sink.done)
	assert.Empty(t, sink.errMsg)
}

func TestWebSearch_BackendErrorBecomesErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "search index down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	require.NoError(t, NewWebSearch(srv.URL, "sk").Execute(context.Background(), searchInput(sink)))

	assert.False(t, sink.done)
	assert.Equal(t, http.StatusBadGateway, sink.status)
	assert.NotEmpty(t, sink.errMsg)
}

func TestWebSearch_UnconfiguredWritesErrorFrame(t *testing.T) {
	sink := &recordingSink{}
	w := NewWebSearch("", "")
	require.False(t, w.Enabled())
	require.NoError(t, w.Execute(context.Background(), searchInput(sink)))

	assert.Equal(t, http.StatusServiceUnavailable, sink.status)
	assert.False(t, sink.done)
}
