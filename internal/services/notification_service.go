package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/smtp"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/davidmoltin/procurement-workflows/pkg/config"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"go.uber.org/zap"
)

// NotificationChannel represents different notification channels
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSlack NotificationChannel = "slack"
)

// NotificationService delivers workflow events via email and Slack
type NotificationService struct {
	config      *config.NotificationConfig
	users       repository.UserRepository
	metrics     *metrics.Metrics
	logger      *logger.Logger
	emailClient *EmailClient
	slackClient *SlackClient
	templates   *NotificationTemplates
}

// EmailClient handles email sending
type EmailClient struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// SlackClient handles Slack notifications
type SlackClient struct {
	webhookURL string
	httpClient *http.Client
}

// NotificationTemplates holds parsed email templates
type NotificationTemplates struct {
	AwaitingApproval *template.Template
	RequestApproved  *template.Template
	RequestRejected  *template.Template
	RequestCancelled *template.Template
}

// RequestNotificationData holds data for request notification templates
type RequestNotificationData struct {
	RequestID    string
	Title        string
	Amount       string
	ActorRole    string
	Level        string
	AwaitingRole string
	Comments     string
	PONumber     string
	RequestURL   string
	Timestamp    string
}

// NewNotificationService creates a new notification service
func NewNotificationService(cfg *config.NotificationConfig, users repository.UserRepository, m *metrics.Metrics, log *logger.Logger) (*NotificationService, error) {
	// Initialize email client if enabled
	var emailClient *EmailClient
	if cfg.Email.Enabled {
		emailClient = &EmailClient{
			smtpHost: cfg.Email.SMTPHost,
			smtpPort: cfg.Email.SMTPPort,
			username: cfg.Email.SMTPUser,
			password: cfg.Email.SMTPPassword,
			from:     cfg.Email.FromAddress,
			send:     smtp.SendMail,
		}
	}

	// Initialize Slack client if enabled
	var slackClient *SlackClient
	if cfg.Slack.Enabled {
		slackClient = &SlackClient{
			webhookURL: cfg.Slack.WebhookURL,
			httpClient: &http.Client{Timeout: 10 * time.Second},
		}
	}

	templates, err := loadNotificationTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load notification templates: %w", err)
	}

	return &NotificationService{
		config:      cfg,
		users:       users,
		metrics:     m,
		logger:      log,
		emailClient: emailClient,
		slackClient: slackClient,
		templates:   templates,
	}, nil
}

// Notify delivers an event on every enabled channel. Errors from individual
// channels are joined; a failed channel does not stop the others.
func (s *NotificationService) Notify(ctx context.Context, event models.NotificationEvent) error {
	tmpl, subject, err := s.templateFor(event)
	if err != nil {
		return err
	}
	data := s.prepareData(event)

	var errs []error

	if s.emailClient != nil {
		recipients, err := s.recipients(ctx, event)
		if err != nil {
			errs = append(errs, err)
		}
		for _, to := range recipients {
			err := s.sendEmail(to, subject, data, tmpl)
			s.metrics.RecordNotification(string(ChannelEmail), status(err))
			if err != nil {
				s.logger.Errorf("Failed to send email notification: %v", err)
				errs = append(errs, err)
			}
		}
	}

	if s.slackClient != nil {
		err := s.sendSlackMessage(ctx, event, data)
		s.metrics.RecordNotification(string(ChannelSlack), status(err))
		if err != nil {
			s.logger.Errorf("Failed to send Slack notification: %v", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %w", errors.Join(errs...))
	}

	s.logger.Debug("Notification delivered",
		logger.RequestID(event.RequestID),
		zap.String("event", string(event.Type)),
	)
	return nil
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}

// recipients resolves the email addresses an event is meant for: every
// active holder of the awaited role, or the request owner for decisions
func (s *NotificationService) recipients(ctx context.Context, event models.NotificationEvent) ([]string, error) {
	if event.Type == models.EventAwaitingApproval {
		users, err := s.users.ListByRole(ctx, event.AwaitingRole)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s users: %w", event.AwaitingRole, err)
		}
		emails := make([]string, 0, len(users))
		for _, u := range users {
			if u.Email != "" && u.ID != event.ActorID {
				emails = append(emails, u.Email)
			}
		}
		return emails, nil
	}

	owner, err := s.users.GetByID(ctx, event.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request owner: %w", err)
	}
	if owner.Email == "" || !owner.IsActive {
		return nil, nil
	}
	return []string{owner.Email}, nil
}

func (s *NotificationService) templateFor(event models.NotificationEvent) (*template.Template, string, error) {
	switch event.Type {
	case models.EventAwaitingApproval:
		return s.templates.AwaitingApproval, fmt.Sprintf("Approval needed: %s", event.Title), nil
	case models.EventApproved:
		return s.templates.RequestApproved, fmt.Sprintf("Approved: %s", event.Title), nil
	case models.EventRejected:
		return s.templates.RequestRejected, fmt.Sprintf("Rejected: %s", event.Title), nil
	case models.EventCancelled:
		return s.templates.RequestCancelled, fmt.Sprintf("Cancelled: %s", event.Title), nil
	}
	return nil, "", fmt.Errorf("unknown notification event type: %s", event.Type)
}

// prepareData prepares event data for templates
func (s *NotificationService) prepareData(event models.NotificationEvent) RequestNotificationData {
	return RequestNotificationData{
		RequestID:    event.RequestID.String(),
		Title:        event.Title,
		Amount:       event.Amount.StringFixed(2),
		ActorRole:    string(event.ActorRole),
		Level:        string(event.Level),
		AwaitingRole: string(event.AwaitingRole),
		Comments:     event.Comments,
		PONumber:     event.PONumber,
		RequestURL:   fmt.Sprintf("%s/requests/%s", s.config.BaseURL, event.RequestID),
		Timestamp:    event.OccurredAt.Format(time.RFC3339),
	}
}

// sendEmail renders and sends one email
func (s *NotificationService) sendEmail(to, subject string, data RequestNotificationData, tmpl *template.Template) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	message := fmt.Sprintf("From: %s\r\n", s.emailClient.from)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "MIME-Version: 1.0\r\n"
	message += "Content-Type: text/html; charset=UTF-8\r\n"
	message += "\r\n"
	message += body.String()

	var auth smtp.Auth
	if s.emailClient.username != "" {
		auth = smtp.PlainAuth("", s.emailClient.username, s.emailClient.password, s.emailClient.smtpHost)
	}
	addr := fmt.Sprintf("%s:%d", s.emailClient.smtpHost, s.emailClient.smtpPort)

	if err := s.emailClient.send(addr, auth, s.emailClient.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// sendSlackMessage posts an attachment to the configured webhook
func (s *NotificationService) sendSlackMessage(ctx context.Context, event models.NotificationEvent, data RequestNotificationData) error {
	var color, title string

	switch event.Type {
	case models.EventAwaitingApproval:
		color = "#FFEB3B" // Yellow
		title = fmt.Sprintf("Awaiting %s: %s", data.AwaitingRole, data.Title)
	case models.EventApproved:
		color = "#4CAF50" // Green
		title = fmt.Sprintf("Approved: %s", data.Title)
	case models.EventRejected:
		color = "#F44336" // Red
		title = fmt.Sprintf("Rejected: %s", data.Title)
	case models.EventCancelled:
		color = "#9E9E9E" // Grey
		title = fmt.Sprintf("Cancelled: %s", data.Title)
	}

	text := fmt.Sprintf("*Amount:* %s\n*Request:* <%s|%s>", data.Amount, data.RequestURL, data.RequestID)
	if data.PONumber != "" {
		text += fmt.Sprintf("\n*PO:* %s", data.PONumber)
	}
	if data.Comments != "" {
		text += fmt.Sprintf("\n*Comments:* %s", data.Comments)
	}

	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  title,
				"text":   text,
				"footer": "Procurement Workflows",
				"ts":     event.OccurredAt.Unix(),
			},
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.slackClient.webhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.slackClient.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}
	return nil
}

// loadNotificationTemplates parses the email templates
func loadNotificationTemplates() (*NotificationTemplates, error) {
	awaitingTmpl, err := template.New("awaiting_approval").Parse(awaitingApprovalEmailTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse awaiting approval template: %w", err)
	}

	approvedTmpl, err := template.New("request_approved").Parse(requestApprovedEmailTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request approved template: %w", err)
	}

	rejectedTmpl, err := template.New("request_rejected").Parse(requestRejectedEmailTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request rejected template: %w", err)
	}

	cancelledTmpl, err := template.New("request_cancelled").Parse(requestCancelledEmailTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request cancelled template: %w", err)
	}

	return &NotificationTemplates{
		AwaitingApproval: awaitingTmpl,
		RequestApproved:  approvedTmpl,
		RequestRejected:  rejectedTmpl,
		RequestCancelled: cancelledTmpl,
	}, nil
}
