package presenceprovider

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

type robloxPresenceProvider struct {
	httpClient HttpClient
}

func (p robloxPresenceProvider) GetPresence(ctx context.Context, userID int64) (*Snapshot, error) {
	url := "https://presence.roblox.com/v1/presence/users"

	payload, err := json.Marshal(presenceRequest{UserIDs: []int64{userID}})
	if err != nil {
		err := fmt.Errorf("failed to marshal request body: %w", err)
		reporting.Report(ctx, err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.USER_AGENT)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to contact roblox presence API: %w", domain.ErrTemporarilyUnavailable, err)
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read roblox presence API response: %w", domain.ErrTemporarilyUnavailable, err)
	}

	snapshot, err := snapshotFromRobloxResponse(resp.StatusCode, data)
	if err != nil {
		if !errors.Is(err, domain.ErrTemporarilyUnavailable) {
			reporting.Report(ctx, err, map[string]string{
				"data":   string(data),
				"status": strconv.Itoa(resp.StatusCode),
			})
		}
		return nil, fmt.Errorf("failed to get snapshot from roblox response: %w", err)
	}

	return snapshot, nil
}

type presenceRequest struct {
	UserIDs []int64 `json:"userIds"`
}

type snapshotResponse struct {
	UserPresenceType int     `json:"userPresenceType"`
	PlaceID          *int64  `json:"placeId"`
	RootPlaceID      *int64  `json:"rootPlaceId"`
	GameInstanceID   *string `json:"gameInstanceId"`
	GameID           *string `json:"gameId"`
}

func snapshotFromRobloxResponse(statusCode int, data []byte) (*Snapshot, error) {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: roblox presence API returned status code %d", domain.ErrTemporarilyUnavailable, statusCode)
	}

	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("roblox presence API returned unexpected status code %d", statusCode)
	}

	var response []snapshotResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse roblox presence API response: %w", err)
	}

	// An empty list is a successful call with no presence data.
	if len(response) == 0 {
		return nil, nil
	}

	first := response[0]
	return &Snapshot{
		PresenceType:   first.UserPresenceType,
		PlaceID:        first.PlaceID,
		RootPlaceID:    first.RootPlaceID,
		GameInstanceID: first.GameInstanceID,
		GameID:         first.GameID,
	}, nil
}

func NewRobloxPresenceProvider(httpClient HttpClient) PresenceProvider {
	return robloxPresenceProvider{
		httpClient: httpClient,
	}
}
