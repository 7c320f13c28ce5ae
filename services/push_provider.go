package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"starmatch_server/models"
)

// PushProvider delivers one message to one device.
type PushProvider interface {
	Send(ctx context.Context, msg models.PushMessage) (models.PushReceipt, error)
}

// PushErrorKind separates configuration failures from per-device failures.
type PushErrorKind string

const (
	PushErrorCredential PushErrorKind = "credential"
	PushErrorToken      PushErrorKind = "token"
)

// PushError is a structured delivery failure reported by the provider.
type PushError struct {
	Kind    PushErrorKind `json:"kind"`
	Code    string        `json:"code"`
	Status  int           `json:"status"`
	Message string        `json:"message"`
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push %s error %s (%d): %s", e.Kind, e.Code, e.Status, e.Message)
}

// FCMProvider sends through the Firebase Cloud Messaging HTTP v1 API.
type FCMProvider struct {
	client    *resty.Client
	projectID string
}

// NewFCMProvider creates a provider. baseURL is normally
// https://fcm.googleapis.com; accessToken is an OAuth2 bearer token.
func NewFCMProvider(baseURL, projectID, accessToken string, timeout time.Duration) *FCMProvider {
	if baseURL == "" {
		baseURL = "https://fcm.googleapis.com"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(accessToken).
		SetTimeout(timeout)

	return &FCMProvider{client: c, projectID: projectID}
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmSendRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmSendResponse struct {
	Name string `json:"name"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func (p *FCMProvider) Send(ctx context.Context, msg models.PushMessage) (models.PushReceipt, error) {
	receipt := models.PushReceipt{Token: msg.Token}
	if p.projectID == "" {
		return receipt, &PushError{Kind: PushErrorCredential, Code: "MISSING_PROJECT", Message: "fcm project id not configured"}
	}

	reqBody := fcmSendRequest{Message: fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		SetPathParam("project", p.projectID).
		Post("/v1/projects/{project}/messages:send")
	if err != nil {
		return receipt, fmt.Errorf("fcm request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return receipt, parseFCMError(resp.StatusCode(), resp.Body())
	}

	var sr fcmSendResponse
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return receipt, fmt.Errorf("decode fcm response: %w", err)
	}
	receipt.Delivered = true
	receipt.MessageID = sr.Name
	return receipt, nil
}

func parseFCMError(status int, body []byte) *PushError {
	pe := &PushError{Kind: PushErrorToken, Status: status}

	var er fcmErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		pe.Message = er.Error.Message
		pe.Code = er.Error.Status
		for _, d := range er.Error.Details {
			if d.ErrorCode != "" {
				pe.Code = d.ErrorCode
				break
			}
		}
	} else {
		pe.Message = string(body)
	}
	if pe.Code == "" {
		pe.Code = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		pe.Code == "THIRD_PARTY_AUTH_ERROR", pe.Code == "SENDER_ID_MISMATCH":
		pe.Kind = PushErrorCredential
	}
	return pe
}

var _ PushProvider = (*FCMProvider)(nil)
