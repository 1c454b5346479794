package httpx

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Note string `json:"note"`
}

func TestDecodeJSONOptionalEmptyBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(""))
	var p payload
	require.NoError(t, DecodeJSONOptional(r, &p))
	require.Empty(t, p.Note)
}

func TestDecodeJSONOptionalMalformedBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader("{not json"))
	var p payload
	require.Error(t, DecodeJSONOptional(r, &p))
}

func TestDecodeJSONOptionalValidBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"note":"resolved"}`))
	var p payload
	require.NoError(t, DecodeJSONOptional(r, &p))
	require.Equal(t, "resolved", p.Note)
}
