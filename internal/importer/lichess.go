package importer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/chessanalytics/core/internal/apperr"
)

// LichessClient speaks the Lichess games-export API (grounded on
// Piemme99-TreeChess's LichessService.FetchGames, generalized from a
// single "max games" fetch to the since/until windowed cursor spec §4.2's
// two-phase import drives).
type LichessClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

// NewLichessClient builds a client against the Lichess API. limiter paces
// outbound requests so a burst of cursor pages never exceeds what the
// platform's own rate limit tolerates.
func NewLichessClient(baseURL, token string, timeout time.Duration) *LichessClient {
	if baseURL == "" {
		baseURL = "https://lichess.org/api"
	}
	return &LichessClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

// FetchWindow fetches games strictly within (sinceMs, untilMs] — either
// bound may be zero to mean unbounded. Pagination on Lichess is natively
// time-windowed, so the caller (the importer state machine) advances
// since/until between calls rather than this client paging internally.
func (c *LichessClient) FetchWindow(ctx context.Context, username string, sinceMs, untilMs int64, max int) (string, error) {
	if username == "" {
		return "", apperr.New(apperr.TagValidation, "lichess username is required")
	}

	reqURL, err := url.Parse(fmt.Sprintf("%s/games/user/%s", c.baseURL, url.PathEscape(username)))
	if err != nil {
		return "", apperr.Wrap(apperr.TagValidation, "build lichess url", err)
	}

	q := reqURL.Query()
	if max <= 0 || max > 100 {
		max = 100
	}
	q.Set("max", strconv.Itoa(max))
	if sinceMs > 0 {
		q.Set("since", strconv.FormatInt(sinceMs, 10))
	}
	if untilMs > 0 {
		q.Set("until", strconv.FormatInt(untilMs, 10))
	}
	q.Set("pgnInJson", "false")
	reqURL.RawQuery = q.Encode()

	return c.fetch(ctx, reqURL.String())
}

// FetchSingleGame fetches one game's PGN by provider id, for the
// fallback single-game fetch path (spec §4.2).
func (c *LichessClient) FetchSingleGame(ctx context.Context, providerGameID string) (string, error) {
	gameURL := fmt.Sprintf("%s/game/export/%s", c.baseURL, url.PathEscape(providerGameID))
	return c.fetch(ctx, gameURL)
}

func (c *LichessClient) fetch(ctx context.Context, reqURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(apperr.TagNetwork, "lichess rate limiter wait", err)
	}

	var body string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(apperr.Wrap(apperr.TagValidation, "build lichess request", err))
		}
		req.Header.Set("Accept", "application/x-chess-pgn")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.TagNetwork, "fetch from lichess", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			return backoff.Permanent(apperr.New(apperr.TagNotFound, "lichess user or game not found"))
		case http.StatusTooManyRequests:
			return apperr.New(apperr.TagNetwork, "lichess rate limited")
		default:
			return apperr.New(apperr.TagNetwork, fmt.Sprintf("lichess api error: %s", resp.Status))
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Wrap(apperr.TagNetwork, "read lichess response", err)
		}
		body = string(raw)
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 1)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return body, nil
}
