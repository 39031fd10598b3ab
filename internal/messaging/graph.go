package messaging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// GraphSender delivers messages through the Microsoft Graph sendMail endpoint
// on behalf of the signed-in mailbox.
type GraphSender struct {
	client *resty.Client
}

// NewGraphSender constructs a Graph sender. The timeout bounds one HTTP call;
// callers usually pass a tighter context deadline.
func NewGraphSender(baseURL, accessToken string, timeout time.Duration) *GraphSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &GraphSender{client: client}
}

type graphAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	Subject       string         `json:"subject"`
	Body          graphBody      `json:"body"`
	ToRecipients  []graphAddress `json:"toRecipients"`
	CCRecipients  []graphAddress `json:"ccRecipients,omitempty"`
	BCCRecipients []graphAddress `json:"bccRecipients,omitempty"`
}

type graphSendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

// Send posts msg to /v1.0/me/sendMail. Only 202 Accepted counts as delivered.
func (g *GraphSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	contentType := "Text"
	if msg.HTML {
		contentType = "HTML"
	}
	request := graphSendMailRequest{
		Message: graphMessage{
			Subject:       msg.Subject,
			Body:          graphBody{ContentType: contentType, Content: msg.Body},
			ToRecipients:  graphAddresses(msg.To),
			CCRecipients:  graphAddresses(msg.CC),
			BCCRecipients: graphAddresses(msg.BCC),
		},
		SaveToSentItems: true,
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(request).
		Post("/v1.0/me/sendMail")
	if err != nil {
		return fmt.Errorf("graph: send mail: %w", err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return fmt.Errorf("graph: send mail: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func graphAddresses(addresses []string) []graphAddress {
	compacted := compact(addresses)
	if len(compacted) == 0 {
		return nil
	}
	out := make([]graphAddress, len(compacted))
	for i, addr := range compacted {
		out[i].EmailAddress.Address = addr
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
