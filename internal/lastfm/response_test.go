package lastfm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScrobbleResponse_SingleObject(t *testing.T) {
	body := []byte(`{"scrobbles":{"@attr":{"accepted":1,"ignored":0},
		"scrobble":{"track":{"corrected":"0","#text":"Song"},"artist":{"corrected":"0","#text":"Band"},
		"timestamp":"1700000000","ignoredMessage":{"code":"0","#text":""}}}}`)

	resp, err := decodeScrobbleResponse(body)

	require.NoError(t, err)
	require.Len(t, resp.Scrobbles.Scrobble, 1)
	assert.Equal(t, "Song", resp.Scrobbles.Scrobble[0].Track.Text)
	assert.Equal(t, 1, int(resp.Scrobbles.Attr.Accepted))
}

func TestDecodeScrobbleResponse_Array(t *testing.T) {
	body := []byte(`{"scrobbles":{"@attr":{"accepted":"1","ignored":"1"},
		"scrobble":[
			{"track":{"#text":"A"},"artist":{"#text":"X"},"ignoredMessage":{"code":"0"}},
			{"track":{"#text":"B"},"artist":{"#text":"X"},"ignoredMessage":{"code":3,"#text":"Timestamp too old"}}
		]}}`)

	resp, err := decodeScrobbleResponse(body)

	require.NoError(t, err)
	items := resp.Scrobbles.Scrobble
	require.Len(t, items, 2)
	assert.Equal(t, 0, int(items[0].IgnoredMessage.Code))
	assert.Equal(t, 3, int(items[1].IgnoredMessage.Code))
	assert.Equal(t, 1, int(resp.Scrobbles.Attr.Ignored))
}

func TestDecodeScrobbleResponse_APIError(t *testing.T) {
	_, err := decodeScrobbleResponse([]byte(`{"error":9,"message":"Invalid session key - Please re-authenticate"}`))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 9, apiErr.Code)
	assert.True(t, IsSessionInvalid(err))
}

func TestDecodeScrobbleResponse_Malformed(t *testing.T) {
	_, err := decodeScrobbleResponse([]byte(`<lfm status="ok"/>`))
	require.Error(t, err)

	_, err = decodeScrobbleResponse([]byte(`{}`))
	require.Error(t, err)
}

func TestIgnoredReason(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, ""},
		{1, "Artist was ignored"},
		{2, "Track was ignored"},
		{3, "Timestamp too old"},
		{4, "Timestamp too new"},
		{5, "Daily scrobble limit exceeded"},
		{42, "Unknown error (code 42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IgnoredReason(tt.code), "code %d", tt.code)
	}
}
