package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/config"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	driveFolderMime = "application/vnd.google-apps.folder"
	driveScope      = "https://www.googleapis.com/auth/drive.file"
	drivePageSize   = 50
)

// DriveToken is the OAuth token pair returned by the authorization server.
type DriveToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// DriveFile is one file or folder in the drive API.
type DriveFile struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MimeType     string     `json:"mimeType"`
	WebViewLink  string     `json:"webViewLink,omitempty"`
	CreatedTime  *time.Time `json:"createdTime,omitempty"`
	ModifiedTime *time.Time `json:"modifiedTime,omitempty"`
}

type driveListResponse struct {
	Files         []DriveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// DriveClient talks to the cloud drive API and its OAuth endpoints.
// Calls are single-shot; retry policy lives in ProviderCaller.
type DriveClient struct {
	cfg        *config.DriveOAuthConfig
	apiClient  *resty.Client
	authClient *resty.Client
	logger     *zap.Logger
}

func NewDriveClient(cfg *config.DriveOAuthConfig, logger *zap.Logger) *DriveClient {
	apiClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBaseURL, "/")).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	authClient := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	return &DriveClient{
		cfg:        cfg,
		apiClient:  apiClient,
		authClient: authClient,
		logger:     logger,
	}
}

func classifyDriveResponse(name string, resp *resty.Response, err error) error {
	if err != nil {
		return &ProviderError{
			Provider:  domain.ProviderDrive,
			Detail:    fmt.Sprintf("%s: %v", name, err),
			Retryable: true,
			Err:       err,
		}
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return nil
	}
	return &ProviderError{
		Provider:  domain.ProviderDrive,
		Status:    status,
		Detail:    fmt.Sprintf("%s: %s", name, strings.TrimSpace(resp.String())),
		Retryable: status >= 500 || status == 429,
	}
}

// AuthURL builds the consent URL for the code flow. state carries the
// tenant id back through the callback. access_type=offline with forced
// consent guarantees a refresh token on first grant.
func (c *DriveClient) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", driveScope)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("state", state)
	return c.cfg.AuthURL + "?" + q.Encode()
}

// Exchange trades an authorization code for a token pair.
func (c *DriveClient) Exchange(code string) (*DriveToken, error) {
	var token DriveToken
	resp, err := c.authClient.R().
		SetFormData(map[string]string{
			"code":          code,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"redirect_uri":  c.cfg.RedirectURI,
			"grant_type":    "authorization_code",
		}).
		SetResult(&token).
		Post(c.cfg.TokenURL)
	if err := classifyDriveResponse("token exchange", resp, err); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, &ProviderError{Provider: domain.ProviderDrive, Detail: "token exchange returned no access token"}
	}
	return &token, nil
}

// Refresh trades a refresh token for a fresh access token. A 4xx here
// means the grant was revoked; callers flip the integration to error.
func (c *DriveClient) Refresh(refreshToken string) (*DriveToken, error) {
	var token DriveToken
	resp, err := c.authClient.R().
		SetFormData(map[string]string{
			"refresh_token": refreshToken,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"grant_type":    "refresh_token",
		}).
		SetResult(&token).
		Post(c.cfg.TokenURL)
	if err := classifyDriveResponse("token refresh", resp, err); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, &ProviderError{Provider: domain.ProviderDrive, Detail: "token refresh returned no access token"}
	}
	return &token, nil
}

// CreateFolder creates one folder, optionally under a parent.
func (c *DriveClient) CreateFolder(accessToken, name, parentID string) (*DriveFile, error) {
	body := map[string]any{
		"name":     name,
		"mimeType": driveFolderMime,
	}
	if parentID != "" {
		body["parents"] = []string{parentID}
	}
	var result DriveFile
	resp, err := c.apiClient.R().
		SetAuthToken(accessToken).
		SetBody(body).
		SetResult(&result).
		Post("/files")
	if err := classifyDriveResponse("create folder", resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindChildFolder looks for a non-trashed folder with the given name under
// a parent. Returns nil (no error) when absent; used to keep provisioning
// idempotent.
func (c *DriveClient) FindChildFolder(accessToken, parentID, name string) (*DriveFile, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
		parentID, strings.ReplaceAll(name, "'", `\'`), driveFolderMime)

	var result driveListResponse
	resp, err := c.apiClient.R().
		SetAuthToken(accessToken).
		SetQueryParam("q", query).
		SetQueryParam("fields", "files(id,name,mimeType)").
		SetQueryParam("pageSize", "1").
		SetResult(&result).
		Get("/files")
	if err := classifyDriveResponse("find folder", resp, err); err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		return nil, nil
	}
	return &result.Files[0], nil
}

// ListFiles pages through the non-trashed children of a folder.
func (c *DriveClient) ListFiles(accessToken, folderID string) ([]DriveFile, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	var files []DriveFile
	pageToken := ""
	for {
		var result driveListResponse
		req := c.apiClient.R().
			SetAuthToken(accessToken).
			SetQueryParam("q", query).
			SetQueryParam("fields", "nextPageToken,files(id,name,mimeType,webViewLink,createdTime,modifiedTime)").
			SetQueryParam("pageSize", fmt.Sprintf("%d", drivePageSize)).
			SetResult(&result)
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}
		resp, err := req.Get("/files")
		if err := classifyDriveResponse("list files", resp, err); err != nil {
			return nil, err
		}
		files = append(files, result.Files...)
		if result.NextPageToken == "" {
			return files, nil
		}
		pageToken = result.NextPageToken
	}
}
