package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

// TemplateData is what email templates can reference.
type TemplateData struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Sender    string `json:"sender"`
}

type RenderedEmail struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type compiledTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

func compileTemplate(t *models.EmailTemplate) (*compiledTemplate, error) {
	subject, err := texttemplate.New("subject").Option("missingkey=error").Parse(t.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %v", models.ErrInvalidInput, err)
	}
	body, err := htmltemplate.New("body").Option("missingkey=error").Parse(t.BodyHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: body: %v", models.ErrInvalidInput, err)
	}
	return &compiledTemplate{subject: subject, body: body}, nil
}

func (c *compiledTemplate) render(data TemplateData) (*RenderedEmail, error) {
	var subj, body bytes.Buffer
	if err := c.subject.Execute(&subj, data); err != nil {
		return nil, fmt.Errorf("%w: subject: %v", models.ErrInvalidInput, err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("%w: body: %v", models.ErrInvalidInput, err)
	}
	return &RenderedEmail{
		Subject: strings.TrimSpace(strings.ReplaceAll(subj.String(), "\n", " ")),
		HTML:    body.String(),
	}, nil
}

type TemplateService interface {
	Create(ctx context.Context, t *models.EmailTemplate) error
	Update(ctx context.Context, t *models.EmailTemplate) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.EmailTemplate, error)
	List(ctx context.Context) ([]*models.EmailTemplate, error)
	// Preview renders the template with data, or with sample values when nil.
	Preview(ctx context.Context, id int64, data *TemplateData) (*RenderedEmail, error)
}

type templateService struct {
	repo   repositories.EmailTemplateRepository
	sender string
}

func NewTemplateService(repo repositories.EmailTemplateRepository, sender string) TemplateService {
	return &templateService{repo: repo, sender: sender}
}

func (s *templateService) sample() TemplateData {
	return TemplateData{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane.doe@example.com",
		Company:   "Example Inc.",
		Sender:    s.sender,
	}
}

// validate parses both parts and renders them once with sample data so
// references to unknown fields are caught on save.
func (s *templateService) validate(t *models.EmailTemplate) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" || strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.BodyHTML) == "" {
		return fmt.Errorf("%w: name, subject and body_html are required", models.ErrInvalidInput)
	}
	c, err := compileTemplate(t)
	if err != nil {
		return err
	}
	_, err = c.render(s.sample())
	return err
}

func (s *templateService) Create(ctx context.Context, t *models.EmailTemplate) error {
	if err := s.validate(t); err != nil {
		return err
	}
	return s.repo.Create(ctx, t)
}

func (s *templateService) Update(ctx context.Context, t *models.EmailTemplate) error {
	if err := s.validate(t); err != nil {
		return err
	}
	return s.repo.Update(ctx, t)
}

func (s *templateService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *templateService) GetByID(ctx context.Context, id int64) (*models.EmailTemplate, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *templateService) List(ctx context.Context) ([]*models.EmailTemplate, error) {
	return s.repo.List(ctx)
}

func (s *templateService) Preview(ctx context.Context, id int64, data *TemplateData) (*RenderedEmail, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := compileTemplate(t)
	if err != nil {
		return nil, err
	}
	d := s.sample()
	if data != nil {
		d = *data
		if d.Sender == "" {
			d.Sender = s.sender
		}
	}
	return c.render(d)
}
