package identityprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/mvrik/lantern/internal/constants"
	"github.com/mvrik/lantern/internal/domain"
	"github.com/mvrik/lantern/internal/reporting"
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type robloxIdentityProvider struct {
	httpClient HttpClient
}

func (p robloxIdentityProvider) ResolveUserID(ctx context.Context, username string) (int64, error) {
	url := "https://users.roblox.com/v1/usernames/users"

	payload, err := json.Marshal(usernamesRequest{Usernames: []string{username}})
	if err != nil {
		err := fmt.Errorf("failed to marshal request body: %w", err)
		reporting.Report(ctx, err)
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.USER_AGENT)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to contact roblox users API: %w", domain.ErrTemporarilyUnavailable, err)
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read roblox users API response: %w", domain.ErrTemporarilyUnavailable, err)
	}

	userID, err := userIDFromRobloxResponse(resp.StatusCode, data)
	if err != nil {
		if !isExpectedResolveError(err) {
			reporting.Report(ctx, err, map[string]string{
				"data":   string(data),
				"status": strconv.Itoa(resp.StatusCode),
			})
		}
		return 0, fmt.Errorf("failed to get user id from roblox response: %w", err)
	}

	return userID, nil
}

type usernamesRequest struct {
	Usernames []string `json:"usernames"`
}

type usernamesResponse struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

func userIDFromRobloxResponse(statusCode int, data []byte) (int64, error) {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return 0, fmt.Errorf("%w: roblox users API returned status code %d", domain.ErrTemporarilyUnavailable, statusCode)
	}

	if statusCode != http.StatusOK {
		return 0, fmt.Errorf("roblox users API returned unexpected status code %d", statusCode)
	}

	var response usernamesResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return 0, fmt.Errorf("failed to parse roblox users API response: %w", err)
	}

	// The API answers batch queries; for a single username only the first
	// entry matters. An empty result set means the username does not exist.
	if len(response.Data) == 0 {
		return 0, domain.ErrUserNotFound
	}

	return response.Data[0].ID, nil
}

func isExpectedResolveError(err error) bool {
	return errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrTemporarilyUnavailable)
}

func NewRobloxIdentityProvider(httpClient HttpClient) IdentityProvider {
	return robloxIdentityProvider{
		httpClient: httpClient,
	}
}
