package lastfm

import (
	"context"
	"errors"
	"strconv"

	"github.com/llehouerou/scrobblesync/internal/metrics"
	"github.com/llehouerou/scrobblesync/internal/scrobble"
)

// Scrobble submits records in chunks of BatchLimit, in order.
//
// A chunk that fails (transport error, non-200, undecodable body or API
// error) yields a failed outcome for each of its tracks; the remaining
// chunks are still sent. The returned error joins the chunk failures and
// is nil when every chunk got a response, even if tracks were ignored.
func (c *Client) Scrobble(ctx context.Context, records []scrobble.Record) (Result, error) {
	sess := c.Session()
	if !sess.Valid() {
		return Result{}, ErrNotAuthenticated
	}

	var (
		res  Result
		errs []error
	)
	for start := 0; start < len(records); start += BatchLimit {
		chunk := records[start:min(start+BatchLimit, len(records))]
		if err := c.submitChunk(ctx, sess.Key, chunk, &res); err != nil {
			c.log.Warn().Err(err).Int("offset", start).Int("tracks", len(chunk)).Msg("scrobble chunk failed")
			errs = append(errs, err)
		}
	}

	metrics.Scrobbles.WithLabelValues("accepted").Add(float64(res.Accepted))
	metrics.Scrobbles.WithLabelValues("ignored").Add(float64(res.Ignored))
	if len(records) > 0 {
		c.log.Info().
			Int("tracks", len(records)).
			Int("accepted", res.Accepted).
			Int("ignored", res.Ignored).
			Msg("scrobble complete")
	}
	return res, errors.Join(errs...)
}

func (c *Client) submitChunk(ctx context.Context, sk string, chunk []scrobble.Record, res *Result) error {
	params := scrobbleParams(c.apiKey, sk, chunk)

	body, err := c.post(ctx, params)
	if err == nil {
		var resp scrobbleResponse
		resp, err = decodeScrobbleResponse(body)
		if err == nil {
			res.Accepted += int(resp.Scrobbles.Attr.Accepted)
			res.Ignored += int(resp.Scrobbles.Attr.Ignored)
			res.Outcomes = append(res.Outcomes, mapOutcomes(chunk, resp.Scrobbles.Scrobble)...)
			return nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			err = &TransportError{Op: "track.scrobble", StatusCode: 200, Err: err}
		}
	}

	metrics.Scrobbles.WithLabelValues("failed").Add(float64(len(chunk)))
	for i := range chunk {
		res.Outcomes = append(res.Outcomes, failedOutcome(&chunk[i], err.Error()))
	}
	return err
}

// scrobbleParams builds the unsigned track.scrobble parameters for a chunk.
func scrobbleParams(apiKey, sk string, chunk []scrobble.Record) Params {
	params := make(Params, 0, 3+len(chunk)*5)
	params.Add("api_key", apiKey)
	params.Add("method", "track.scrobble")
	params.Add("sk", sk)
	for i := range chunk {
		r := &chunk[i]
		idx := "[" + strconv.Itoa(i) + "]"
		params.Add("artist"+idx, r.Artist)
		params.Add("track"+idx, r.Track)
		params.Add("album"+idx, r.Album)
		params.Add("timestamp"+idx, strconv.FormatInt(r.Timestamp.Unix(), 10))
		if r.Duration > 0 {
			params.Add("duration"+idx, strconv.Itoa(int(r.Duration.Seconds())))
		}
	}
	return params
}

// mapOutcomes pairs response items with the submitted records by position.
func mapOutcomes(chunk []scrobble.Record, items scrobbleItems) []Outcome {
	out := make([]Outcome, 0, len(chunk))
	for i := range chunk {
		r := &chunk[i]
		if i >= len(items) {
			out = append(out, failedOutcome(r, "No result returned for track"))
			continue
		}
		code := int(items[i].IgnoredMessage.Code)
		out = append(out, Outcome{
			RecordID:    r.ID,
			SourceID:    r.SourceID,
			Track:       r.Track,
			Artist:      r.Artist,
			Accepted:    code == IgnoredNone,
			IgnoredCode: code,
			Message:     IgnoredReason(code),
		})
	}
	return out
}

func failedOutcome(r *scrobble.Record, msg string) Outcome {
	return Outcome{
		RecordID: r.ID,
		SourceID: r.SourceID,
		Track:    r.Track,
		Artist:   r.Artist,
		Message:  msg,
	}
}
