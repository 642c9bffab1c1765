// Package hms provides the Huawei Push Kit adapter.
package hms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

const (
	DefaultTokenURL = "https://oauth-login.cloud.huawei.com/oauth2/v3/token"
	DefaultPushURL  = "https://push-api.cloud.huawei.com/v1"

	successCode = "80000000"
	// click_action type 3 opens the app's launcher activity.
	clickActionOpenApp = 3
)

// Config holds the Push Kit endpoints. HTTPClient is optional and is used for both the
// token exchange and the send.
type Config struct {
	TokenURL   string
	PushURL    string
	HTTPClient *http.Client
}

// Credential is the tenant's Push Kit app credential. Both a flat document and the
// "client" section of agconnect-services.json are accepted.
type Credential struct {
	AppID        string `json:"app_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func ParseCredential(raw []byte) (*Credential, error) {
	var doc struct {
		Credential
		Client *Credential `json:"client"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode huawei credential: %w", err)
	}
	cred := doc.Credential
	if doc.Client != nil {
		cred = *doc.Client
	}
	if cred.ClientID == "" || cred.ClientSecret == "" {
		return nil, fmt.Errorf("huawei credential requires client_id and client_secret")
	}
	if cred.AppID == "" {
		cred.AppID = cred.ClientID
	}
	return &cred, nil
}

type Adapter struct {
	credentials push.CredentialReader
	cfg         Config
	logger      *slog.Logger
}

var _ push.ProviderAdapter = (*Adapter)(nil)

func NewAdapter(credentials push.CredentialReader, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.PushURL == "" {
		cfg.PushURL = DefaultPushURL
	}
	return &Adapter{
		credentials: credentials,
		cfg:         cfg,
		logger:      logger.With("component", "HMSAdapter"),
	}
}

func (a *Adapter) Platform() push.Platform { return push.PlatformHuawei }

type sendRequest struct {
	ValidateOnly bool    `json:"validate_only"`
	Message      message `json:"message"`
}

type message struct {
	Notification *notification  `json:"notification,omitempty"`
	Android      *androidConfig `json:"android,omitempty"`
	Data         string         `json:"data,omitempty"`
	Token        []string       `json:"token"`
}

type notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

type androidConfig struct {
	Notification androidNotification `json:"notification"`
}

type androidNotification struct {
	Title       string      `json:"title,omitempty"`
	Body        string      `json:"body,omitempty"`
	Image       string      `json:"image,omitempty"`
	Sound       string      `json:"sound,omitempty"`
	Category    string      `json:"category,omitempty"`
	ClickAction clickAction `json:"click_action"`
}

type clickAction struct {
	Type int `json:"type"`
}

type sendResponse struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	RequestID string `json:"requestId"`
}

// Send exchanges the tenant's client credentials for an access token and posts one
// message to the app's messages:send endpoint.
func (a *Adapter) Send(ctx context.Context, creds push.CredentialBundle, deviceToken string, p push.Payload) (*push.ProviderResult, error) {
	raw, err := a.credentials.ReadCredential(ctx, creds.CredentialRef)
	if err != nil {
		return nil, err
	}
	cred, err := ParseCredential(raw)
	if err != nil {
		return nil, &push.ProviderError{Platform: push.PlatformHuawei, Reason: "invalid credential", Err: err}
	}

	body, err := json.Marshal(buildRequest(deviceToken, p))
	if err != nil {
		return nil, fmt.Errorf("failed to encode huawei message: %w", err)
	}

	authCtx := ctx
	if a.cfg.HTTPClient != nil {
		authCtx = context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
	}
	oauthCfg := clientcredentials.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		TokenURL:     a.cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	client := oauthCfg.Client(authCtx)

	url := fmt.Sprintf("%s/%s/messages:send", strings.TrimRight(a.cfg.PushURL, "/"), cred.AppID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build huawei request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &push.ProviderError{Platform: push.PlatformHuawei, Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &push.ProviderError{Platform: push.PlatformHuawei, Reason: "failed to read response", StatusCode: resp.StatusCode, Err: err}
	}

	var result sendResponse
	if err := json.Unmarshal(respBody, &result); err != nil && resp.StatusCode == http.StatusOK {
		return nil, &push.ProviderError{Platform: push.PlatformHuawei, Reason: "malformed response", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK || result.Code != successCode {
		reason := result.Msg
		if reason == "" {
			reason = strings.TrimSpace(string(respBody))
		}
		a.logger.Warn("Push Kit rejected message", "tenant_id", creds.TenantID, "status", resp.StatusCode, "code", result.Code)
		return nil, &push.ProviderError{
			Platform:   push.PlatformHuawei,
			Reason:     fmt.Sprintf("%s: %s", result.Code, reason),
			StatusCode: resp.StatusCode,
		}
	}

	return &push.ProviderResult{ID: result.RequestID, StatusCode: resp.StatusCode, Detail: result.Msg}, nil
}

// buildRequest maps the neutral payload onto a Push Kit v1 send request.
func buildRequest(deviceToken string, p push.Payload) sendRequest {
	msg := message{
		Notification: &notification{Title: p.Title, Body: p.Body, Image: p.ImageURL},
		Android: &androidConfig{Notification: androidNotification{
			Title:       p.Title,
			Body:        p.Body,
			Image:       p.ImageURL,
			Sound:       p.Sound,
			Category:    p.Category,
			ClickAction: clickAction{Type: clickActionOpenApp},
		}},
		Token: []string{deviceToken},
	}
	if len(p.Data) > 0 {
		// Push Kit carries data as a JSON string.
		data, _ := json.Marshal(p.Data)
		msg.Data = string(data)
	}
	return sendRequest{Message: msg}
}
