// Package dispatch sends newsletter announcements through AWS SES when this
// process, rather than the base API, owns email delivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
)

var (
	// ErrNoRecipients is returned when no usable address remains.
	ErrNoRecipients = errors.New("no valid recipients")
	// ErrAllFailed is returned when every send was rejected.
	ErrAllFailed = errors.New("every recipient send failed")
)

// DefaultTemplate is the Liquid HTML body of the announcement.
const DefaultTemplate = `<!DOCTYPE html>
<html><body style="font-family:sans-serif;max-width:600px;margin:auto">
<p style="color:#888;text-transform:uppercase;font-size:12px">{{ category | escape }}</p>
<h1>{{ title | escape }}</h1>
<p>{{ description | escape }}</p>
<p><a href="{{ link | escape }}">Read the full newsletter</a></p>
</body></html>`

// EmailSender is the subset of the SES v2 client used here.
type EmailSender interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESDispatcher sends one SES message per recipient.
type SESDispatcher struct {
	client           EmailSender
	from             string
	configurationSet string
	tpl              *liquid.Template
}

// Options configures an SESDispatcher.
type Options struct {
	FromAddress      string
	FromName         string
	ConfigurationSet string
	// Template overrides DefaultTemplate.
	Template string
}

// NewSESDispatcher parses the body template and returns a dispatcher.
func NewSESDispatcher(client EmailSender, opts Options) (*SESDispatcher, error) {
	if opts.FromAddress == "" {
		return nil, errors.New("dispatch: from address is required")
	}
	src := opts.Template
	if src == "" {
		src = DefaultTemplate
	}
	tpl, err := liquid.NewEngine().ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dispatch: parse template: %w", err)
	}

	from := opts.FromAddress
	if opts.FromName != "" {
		from = (&mail.Address{Name: opts.FromName, Address: opts.FromAddress}).String()
	}
	return &SESDispatcher{
		client:           client,
		from:             from,
		configurationSet: opts.ConfigurationSet,
		tpl:              tpl,
	}, nil
}

// Render returns the HTML body for req.
func (d *SESDispatcher) Render(req domain.EmailRequest) (string, error) {
	out, err := d.tpl.RenderString(map[string]interface{}{
		"title":       req.Title,
		"description": req.Description,
		"link":        req.Link,
		"category":    string(req.Category),
	})
	if err != nil {
		return "", fmt.Errorf("dispatch: render: %w", err)
	}
	return out, nil
}

// Dispatch implements workflow.Dispatcher. Blank, malformed and duplicate
// addresses are dropped before sending; the status counts the rest.
func (d *SESDispatcher) Dispatch(ctx context.Context, req domain.EmailRequest) (string, error) {
	to := usableAddresses(req.Emails)
	if len(to) == 0 {
		return "", ErrNoRecipients
	}
	body, err := d.Render(req)
	if err != nil {
		return "", err
	}

	sent := 0
	for _, addr := range to {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		input := &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(d.from),
			Destination:      &types.Destination{ToAddresses: []string{addr}},
			Content: &types.EmailContent{
				Simple: &types.Message{
					Subject: &types.Content{Data: aws.String(req.Title), Charset: aws.String("UTF-8")},
					Body: &types.Body{
						Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
						Text: &types.Content{Data: aws.String(req.Description + "\n\n" + req.Link), Charset: aws.String("UTF-8")},
					},
				},
			},
		}
		if d.configurationSet != "" {
			input.ConfigurationSetName = aws.String(d.configurationSet)
		}
		if _, err := d.client.SendEmail(ctx, input); err != nil {
			logger.Warn("dispatch: SES send failed", "email", addr, "error", err)
			continue
		}
		sent++
	}

	logger.Info("dispatch: SES batch done", "sent", sent, "total", len(to))
	if sent == 0 {
		return "", fmt.Errorf("%w: %d recipients", ErrAllFailed, len(to))
	}
	return fmt.Sprintf("Email sent to %d of %d subscribers", sent, len(to)), nil
}

// usableAddresses trims, validates and de-duplicates (case-insensitively)
// the recipient list, keeping first-seen order.
func usableAddresses(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	var out []string
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		parsed, err := mail.ParseAddress(e)
		if err != nil || parsed.Address != e {
			logger.Debug("dispatch: dropping malformed address", "email", e)
			continue
		}
		key := strings.ToLower(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
