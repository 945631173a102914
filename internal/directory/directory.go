// Package directory resolves user display profiles from the external user
// service. The chat core only reads profiles; identity itself arrives
// pre-validated from the gateway.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"messenger-service/internal/models"
)

// UserDirectory looks up counterpart display info.
type UserDirectory interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
}

// HTTPDirectory is a UserDirectory backed by the user service's REST API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory constructs an HTTPDirectory.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

var _ UserDirectory = (*HTTPDirectory)(nil)

// GetProfile fetches a user's profile by id.
func (d *HTTPDirectory) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	url := fmt.Sprintf("%s/api/users/%s", d.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Profile{}, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return models.Profile{}, fmt.Errorf("user service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Profile{}, fmt.Errorf("user service returned %d", resp.StatusCode)
	}

	var profile models.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}
