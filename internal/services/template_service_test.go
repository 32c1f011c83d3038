package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/models"
)

func TestCompiledTemplateRender(t *testing.T) {
	c, err := compileTemplate(&models.EmailTemplate{
		Subject:  "Hi {{.FirstName}},\nnews from {{.Sender}}",
		BodyHTML: `<p>Dear {{.FirstName}} {{.LastName}} at {{.Company}}</p>`,
	})
	require.NoError(t, err)

	out, err := c.render(TemplateData{FirstName: "Ann", LastName: "<script>", Company: "Initech", Sender: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ann, news from Acme", out.Subject)
	assert.Equal(t, `<p>Dear Ann &lt;script&gt; at Initech</p>`, out.HTML)
}

func TestTemplateValidate(t *testing.T) {
	svc := &templateService{sender: "Acme"}

	ok := &models.EmailTemplate{Name: " Welcome ", Subject: "Hello {{.FirstName}}", BodyHTML: "<p>{{.Email}}</p>"}
	require.NoError(t, svc.validate(ok))
	assert.Equal(t, "Welcome", ok.Name)

	tests := map[string]*models.EmailTemplate{
		"missing name":    {Subject: "s", BodyHTML: "b"},
		"missing body":    {Name: "n", Subject: "s"},
		"parse error":     {Name: "n", Subject: "{{.FirstName", BodyHTML: "b"},
		"unknown field":   {Name: "n", Subject: "s", BodyHTML: "{{.Phone}}"},
		"body not closed": {Name: "n", Subject: "s", BodyHTML: "{{if .Email}}x"},
	}
	for name, tpl := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, svc.validate(tpl), models.ErrInvalidInput)
		})
	}
}

func TestTemplatePreview(t *testing.T) {
	repo := new(MockTemplateRepository)
	svc := NewTemplateService(repo, "Acme")
	ctx := context.Background()
	repo.On("GetByID", ctx, int64(4)).Return(&models.EmailTemplate{
		ID: 4, Subject: "For {{.Company}}", BodyHTML: "<b>{{.FirstName}}</b> from {{.Sender}}",
	}, nil)

	sample, err := svc.Preview(ctx, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "For Example Inc.", sample.Subject)
	assert.Equal(t, "<b>Jane</b> from Acme", sample.HTML)

	custom, err := svc.Preview(ctx, 4, &TemplateData{FirstName: "Bo", Company: "Globex"})
	require.NoError(t, err)
	assert.Equal(t, "For Globex", custom.Subject)
	assert.Equal(t, "<b>Bo</b> from Acme", custom.HTML)
}
