package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONResponse asserts that an HTTP response has the expected status code and JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	t.Helper()

	assert.Equal(t, expectedStatus, w.Code, "unexpected status code")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "unexpected content type")

	if expectedBody != nil {
		expectedJSON, err := json.Marshal(expectedBody)
		require.NoError(t, err, "failed to marshal expected body")

		assert.JSONEq(t, string(expectedJSON), w.Body.String(), "unexpected response body")
	}
}

// AssertErrorResponse asserts that an HTTP response contains an error and
// returns the decoded body
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMessage string) map[string]interface{} {
	t.Helper()

	assert.Equal(t, expectedStatus, w.Code, "unexpected status code: %s", w.Body.String())

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err, "failed to decode response")

	if expectedMessage != "" {
		assert.Contains(t, response["error"], expectedMessage, "unexpected error message")
	}
	return response
}

// DecodeJSON decodes a recorded response body into v
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "failed to decode body: %s", w.Body.String())
}

// MakeJSONRequest creates an HTTP request with JSON body
func MakeJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()

	if body == nil {
		return httptest.NewRequest(method, url, nil)
	}

	bodyBytes, err := json.Marshal(body)
	require.NoError(t, err, "failed to marshal request body")

	req := httptest.NewRequest(method, url, bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}
