package lastfm

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// errorBody is the shape of a rejected call.
type errorBody struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type sessionResponse struct {
	errorBody
	Session *struct {
		Name       string  `json:"name"`
		Key        string  `json:"key"`
		Subscriber flexInt `json:"subscriber"`
	} `json:"session"`
}

type scrobbleResponse struct {
	errorBody
	Scrobbles *struct {
		Attr struct {
			Accepted flexInt `json:"accepted"`
			Ignored  flexInt `json:"ignored"`
		} `json:"@attr"`
		Scrobble scrobbleItems `json:"scrobble"`
	} `json:"scrobbles"`
}

type textValue struct {
	Corrected string `json:"corrected"`
	Text      string `json:"#text"`
}

type scrobbleItem struct {
	Track          textValue `json:"track"`
	Artist         textValue `json:"artist"`
	Album          textValue `json:"album"`
	AlbumArtist    textValue `json:"albumArtist"`
	Timestamp      string    `json:"timestamp"`
	IgnoredMessage struct {
		Code flexInt `json:"code"`
		Text string  `json:"#text"`
	} `json:"ignoredMessage"`
}

// scrobbleItems accepts both a single scrobble object and an array of them;
// Last.fm sends the former when one track was submitted.
type scrobbleItems []scrobbleItem

func (s *scrobbleItems) UnmarshalJSON(data []byte) error {
	var many []scrobbleItem
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}
	var one scrobbleItem
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("scrobble: expected object or array: %w", err)
	}
	*s = scrobbleItems{one}
	return nil
}

// flexInt decodes integers Last.fm sends either as numbers or as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// decodeScrobbleResponse parses a track.scrobble body.
func decodeScrobbleResponse(body []byte) (scrobbleResponse, error) {
	var resp scrobbleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != 0 {
		return resp, &APIError{Code: resp.Error, Message: resp.Message}
	}
	if resp.Scrobbles == nil {
		return resp, fmt.Errorf("decode response: missing scrobbles")
	}
	return resp, nil
}

// decodeAPIError extracts an API error from body, if it holds one.
func decodeAPIError(body []byte) *APIError {
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error == 0 {
		return nil
	}
	return &APIError{Code: e.Error, Message: e.Message}
}
