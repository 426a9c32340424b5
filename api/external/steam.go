/* steam.go
 * Contains the roster resolvers that turn steam ids into display names
 * Authors: Zachary Bower
 */

package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultSteamURL = "https://api.steampowered.com"
	// GetPlayerSummaries accepts at most this many ids per call
	steamBatchSize = 100
)

// SteamResolver resolves persona names through the Steam web api
type SteamResolver struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// Function for initialising SteamResolver
// Preconditions: Receives the api base url (empty for the public api) and the web api key
// Postconditions: Returns pointer to the resolver
func NewSteamResolver(baseURL string, apiKey string) *SteamResolver {
	if baseURL == "" {
		baseURL = DefaultSteamURL
	}
	return &SteamResolver{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Function to fetch the persona name of every player id
// Preconditions: Receives context and the steam ids to resolve
// Postconditions: Returns map of steam id: persona name, a *MissingPlayersError listing the ids steam did not return,
// or an error if a request failed
func (s *SteamResolver) ResolveNames(ctx context.Context, playerIDs []string) (map[string]string, error) {
	ids := uniqueIDs(playerIDs)
	names := make(map[string]string, len(ids))

	for start := 0; start < len(ids); start += steamBatchSize {
		end := min(start+steamBatchSize, len(ids))
		if err := s.fetchSummaries(ctx, ids[start:end], names); err != nil {
			return nil, err
		}
	}

	var missing []string
	for _, id := range ids {
		if names[id] == "" {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingPlayersError{PlayerIDs: missing}
	}
	return names, nil
}

// Helper that requests one batch of summaries and adds the names to out
func (s *SteamResolver) fetchSummaries(ctx context.Context, ids []string, out map[string]string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for steam rate limit: %w", err)
	}

	parsedUrl, err := url.Parse(s.BaseURL + "/ISteamUser/GetPlayerSummaries/v2/")
	if err != nil {
		return fmt.Errorf("invalid steam url: %w", err)
	}
	params := parsedUrl.Query()
	params.Set("key", s.APIKey)
	params.Set("steamids", strings.Join(ids, ","))
	parsedUrl.RawQuery = params.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedUrl.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Accept-Encoding", "gzip")

	response, err := s.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("steam request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("steam returned status code %d", response.StatusCode)
	}

	body, err := readBody(response)
	if err != nil {
		return fmt.Errorf("failed to read steam response: %w", err)
	}

	var summaries playerSummariesResponse
	if err := json.Unmarshal(body, &summaries); err != nil {
		return fmt.Errorf("failed to decode steam response: %w", err)
	}
	for _, p := range summaries.Response.Players {
		out[p.SteamID] = p.PersonaName
	}
	return nil
}

// StaticResolver resolves names from a fixed map. Ids without an entry fall back to the id itself when
// UseIDFallback is set and are reported missing otherwise
type StaticResolver struct {
	Names         map[string]string
	UseIDFallback bool
}

func (r StaticResolver) ResolveNames(ctx context.Context, playerIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(playerIDs))
	var missing []string
	for _, id := range uniqueIDs(playerIDs) {
		if name, ok := r.Names[id]; ok && name != "" {
			names[id] = name
			continue
		}
		if r.UseIDFallback {
			names[id] = id
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		return nil, &MissingPlayersError{PlayerIDs: missing}
	}
	return names, nil
}

// Helper that drops empty and duplicate ids while keeping order
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
