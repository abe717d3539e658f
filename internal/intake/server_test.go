package intake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/codeinsight/internal/model"
)

func post(t *testing.T, s *Server, body string) (*http.Response, response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/explain", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestExplainAccepted(t *testing.T) {
	var got []Submission
	s := New(func(sub Submission) { got = append(got, sub) }, nil)

	resp, out := post(t, s, `{"code":"def f():\n  pass","mode":"split"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, out.Success)

	require.Len(t, got, 1)
	assert.Equal(t, model.ModeInsightSplit, got[0].Mode)
	assert.Contains(t, got[0].Code, "def f()")
}

func TestExplainWithoutMode(t *testing.T) {
	var got []Submission
	s := New(func(sub Submission) { got = append(got, sub) }, nil)

	resp, _ := post(t, s, `{"code":"x := 1"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Mode)
}

func TestExplainRejectsBadInput(t *testing.T) {
	called := false
	s := New(func(Submission) { called = true }, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty code", `{"code":"   "}`},
		{"unknown mode", `{"code":"x","mode":"sideways"}`},
		{"malformed", `{"code":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := post(t, s, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, out.Success)
			assert.NotEmpty(t, out.Message)
		})
	}
	assert.False(t, called)
}

func TestHealth(t *testing.T) {
	s := New(nil, nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
