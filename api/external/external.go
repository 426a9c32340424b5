/* external.go
 * Contains the client for the game server host's console api and the helpers shared by every outbound http call
 * Authors: Zachary Bower
 */

package external

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultDatHostURL = "https://dathost.net"

// DatHostClient sends console commands through the DatHost game server api
type DatHostClient struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// Function for initialising DatHostClient. Requests are limited to 5 per second
// Preconditions: Receives the api base url (empty for the public api) and the account credentials
// Postconditions: Returns pointer to the client
func NewDatHostClient(baseURL string, username string, password string) *DatHostClient {
	if baseURL == "" {
		baseURL = DefaultDatHostURL
	}
	return &DatHostClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Username:   username,
		Password:   password,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// Function to send one console line to a game server. ctx bounds the whole call including the wait for the limiter
// Preconditions: Receives context, the game server id and the command line
// Postconditions: Returns nil on a 2xx answer, a *CommandError for any other status, or the transport error
func (c *DatHostClient) SendCommand(ctx context.Context, serverID string, command string) error {
	if serverID == "" {
		return fmt.Errorf("game server id is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for command rate limit: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/0.1/game-servers/%s/console", c.BaseURL, url.PathEscape(serverID))
	form := url.Values{}
	form.Set("line", command)

	// Create HTTP Request
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.SetBasicAuth(c.Username, c.Password)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept-Encoding", "gzip")

	response, err := c.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("command request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := readBody(response)
	if err != nil {
		return fmt.Errorf("failed to read command response: %w", err)
	}

	// Anything outside 2xx is reported with the status so the caller can tell auth failures apart
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &CommandError{StatusCode: response.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

// Function to read a response body, decompressing it if the server gzipped it
// Preconditions: Receives the http response
// Postconditions: Returns the body bytes or the read error
func readBody(response *http.Response) ([]byte, error) {
	if response.Header.Get("Content-Encoding") == "gzip" {
		reader, err := gzip.NewReader(response.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	}
	return io.ReadAll(response.Body)
}
