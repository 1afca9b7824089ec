package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/chessanalytics/core/internal/apperr"
)

// ChessComClient speaks the Chess.com published-data API (grounded on
// Piemme99-TreeChess's ChesscomService: archive-list-then-per-month-PGN
// shape), generalized to the backward month-walking cursor spec §4.2's
// two-phase import drives.
type ChessComClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

func NewChessComClient(baseURL, userAgent string, timeout time.Duration) *ChessComClient {
	if baseURL == "" {
		baseURL = "https://api.chess.com/pub"
	}
	if userAgent == "" {
		userAgent = "chess-core/1.0"
	}
	return &ChessComClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

type chesscomArchivesResponse struct {
	Archives []string `json:"archives"`
}

// Archives lists a player's monthly archive URLs, oldest first (the
// platform's native order); the caller reverses for newest-month-first
// traversal (spec §4.2).
func (c *ChessComClient) Archives(ctx context.Context, username string) ([]string, error) {
	archivesURL := fmt.Sprintf("%s/player/%s/games/archives", c.baseURL, strings.ToLower(username))
	body, err := c.doRequestJSON(ctx, archivesURL)
	if err != nil {
		return nil, err
	}
	var archives chesscomArchivesResponse
	if err := json.Unmarshal(body, &archives); err != nil {
		return nil, apperr.Wrap(apperr.TagParseError, "parse chess.com archives response", err)
	}
	return archives.Archives, nil
}

// FetchMonthPGN fetches the concatenated PGN for one monthly archive URL.
func (c *ChessComClient) FetchMonthPGN(ctx context.Context, archiveURL string) (string, error) {
	return c.doRequestText(ctx, archiveURL+"/pgn")
}

func (c *ChessComClient) doRequestJSON(ctx context.Context, reqURL string) ([]byte, error) {
	return c.do(ctx, reqURL, "application/json")
}

func (c *ChessComClient) doRequestText(ctx context.Context, reqURL string) (string, error) {
	body, err := c.do(ctx, reqURL, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *ChessComClient) do(ctx context.Context, reqURL string, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Wrap(apperr.TagNetwork, "chess.com rate limiter wait", err)
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(apperr.Wrap(apperr.TagValidation, "build chess.com request", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.TagNetwork, "fetch from chess.com", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			return backoff.Permanent(apperr.New(apperr.TagNotFound, "chess.com user or archive not found"))
		case http.StatusTooManyRequests:
			return apperr.New(apperr.TagNetwork, "chess.com rate limited")
		default:
			return apperr.New(apperr.TagNetwork, fmt.Sprintf("chess.com api error: %s", resp.Status))
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Wrap(apperr.TagNetwork, "read chess.com response", err)
		}
		body = raw
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 1)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// ReverseMonths reverses an archive-URL slice in place, for the
// newest-month-first traversal order spec §4.2 requires, and returns it.
func ReverseMonths(archives []string) []string {
	for i, j := 0, len(archives)-1; i < j; i, j = i+1, j-1 {
		archives[i], archives[j] = archives[j], archives[i]
	}
	return archives
}

// ArchiveYearMonth parses the trailing /YYYY/MM segments off an archive
// URL, used to populate ImportCursor.Year/Month as the backfill checkpoint.
func ArchiveYearMonth(archiveURL string) (year, month int, ok bool) {
	parts := strings.Split(archiveURL, "/")
	if len(parts) < 2 {
		return 0, 0, false
	}
	yearStr, monthStr := parts[len(parts)-2], parts[len(parts)-1]
	if _, err := fmt.Sscanf(yearStr, "%d", &year); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(monthStr, "%d", &month); err != nil {
		return 0, 0, false
	}
	return year, month, true
}
