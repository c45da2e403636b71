package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"mailsprint/models"
	"mailsprint/sequence"
	"mailsprint/utils"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Rendered is the subject/body pair ready for delivery.
type Rendered struct {
	Subject string
	Body    string
}

// Renderer produces the message content for a send step.
type Renderer interface {
	Render(ctx context.Context, cfg *sequence.StepConfig, lead *models.Lead) (Rendered, error)
}

// Built-in follow-up bodies; a template name without an entry falls
// back to the generic nudge.
var builtinTemplates = map[string]string{
	"followup_1": "Hey {{.FirstName}}, circling back on the workflow idea. " +
		"Want a 60-sec loom for {{.Company}}, or should I close this out?",
	"followup_2": "{{.FirstName}}, quick nudge - happy to send a 60-sec loom of the exact workflow for {{.Company}}. " +
		"If now's not the time, I'll close the loop.",
	"default": "Hey {{.FirstName}}, following up - would a short loom walkthrough for {{.Company}} be useful?",
}

type templateData struct {
	FirstName string
	Company   string
}

// TemplateRenderer renders the built-in static bodies.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	r := &TemplateRenderer{templates: make(map[string]*template.Template, len(builtinTemplates))}
	for name, body := range builtinTemplates {
		tmpl, err := template.New(name).Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func (r *TemplateRenderer) Render(ctx context.Context, cfg *sequence.StepConfig, lead *models.Lead) (Rendered, error) {
	data := templateData{
		FirstName: firstNameOr(lead, "there"),
		Company:   companyOr(lead, "your team"),
	}

	tmpl, ok := r.templates[cfg.Template]
	if !ok {
		tmpl = r.templates["default"]
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render template %q: %w", cfg.Template, err)
	}
	return Rendered{
		Subject: cfg.Subject,
		Body:    utils.OneParagraph(buf.String()),
	}, nil
}

// LLMRenderer asks the model for a personalized one-paragraph
// follow-up and falls back to the static template on any failure.
type LLMRenderer struct {
	client   *openai.Client
	model    string
	fallback *TemplateRenderer
	logger   *logrus.Logger
}

func NewLLMRenderer(client *openai.Client, model string, fallback *TemplateRenderer, logger *logrus.Logger) *LLMRenderer {
	return &LLMRenderer{
		client:   client,
		model:    model,
		fallback: fallback,
		logger:   logger,
	}
}

const llmSystemPrompt = "You are an expert B2B SDR writing concise, friendly follow-up emails for workflow automation. " +
	"Rules: one paragraph, 3-6 sentences; reference the opener gently without repeating it; " +
	"personalize with the company and its description when relevant; avoid links; keep language concrete and simple. " +
	"Output strict JSON with keys: subject, body_one_paragraph."

type llmEmail struct {
	Subject          string `json:"subject"`
	BodyOneParagraph string `json:"body_one_paragraph"`
	Body             string `json:"body"`
}

func (r *LLMRenderer) Render(ctx context.Context, cfg *sequence.StepConfig, lead *models.Lead) (Rendered, error) {
	rendered, err := r.generate(ctx, cfg, lead)
	if err != nil {
		r.logger.WithError(err).Warn("LLM rendering failed; falling back to static template")
		return r.fallback.Render(ctx, cfg, lead)
	}
	return rendered, nil
}

func (r *LLMRenderer) generate(ctx context.Context, cfg *sequence.StepConfig, lead *models.Lead) (Rendered, error) {
	if r.client == nil {
		return Rendered{}, fmt.Errorf("no LLM client configured")
	}

	style := cfg.LLM.Style
	if style == "" {
		style = "concise, friendly, expert"
	}
	temperature := cfg.LLM.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	maxTokens := cfg.LLM.MaxTokens
	if maxTokens == 0 {
		maxTokens = 220
	}

	prompt := fmt.Sprintf(
		"Prospect: %s at %s.\nCompany description: %s.\nStyle: %s.\n"+
			"Task: write a follow-up that advances the conversation with a low-friction CTA (e.g. 'Want a 60-sec loom?').\n"+
			"Return JSON {\"subject\": \"...\", \"body_one_paragraph\": \"...\"}.",
		firstNameOr(lead, "there"),
		companyOr(lead, "your team"),
		descriptionOr(lead, "n/a"),
		style,
	)

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Rendered{}, fmt.Errorf("LLM call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Rendered{}, fmt.Errorf("LLM returned no choices")
	}

	var email llmEmail
	text := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(text), &email); err != nil {
		// Non-JSON output still carries a usable body.
		email.BodyOneParagraph = text
	}

	body := email.BodyOneParagraph
	if body == "" {
		body = email.Body
	}
	if body == "" {
		return Rendered{}, fmt.Errorf("LLM returned empty body")
	}

	subject := email.Subject
	if subject == "" {
		subject = cfg.Subject
	}
	return Rendered{
		Subject: utils.OneParagraph(subject),
		Body:    utils.OneParagraph(body),
	}, nil
}

func firstNameOr(lead *models.Lead, fallback string) string {
	if lead.FirstName != "" {
		return lead.FirstName
	}
	return fallback
}

func companyOr(lead *models.Lead, fallback string) string {
	if lead.Company != "" {
		return lead.Company
	}
	return fallback
}

func descriptionOr(lead *models.Lead, fallback string) string {
	if v := lead.Field("Description"); v != "" {
		return v
	}
	return fallback
}
