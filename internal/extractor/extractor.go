// Package extractor maps a rendered form page into a schemas.Form.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/config"
)

var (
	// ErrFormUnreadable is the class of every hard extraction failure.
	ErrFormUnreadable = errors.New("could not read form")

	ErrContainerNotFound = errors.New("form container not found")
	ErrTitleNotFound     = errors.New("form title not found")
	ErrNoQuestions       = errors.New("no question blocks found")
)

// Skip reasons recorded in a Report.
const (
	ReasonNoPrompt  = "prompt not found"
	ReasonNoOptions = "no options found"
)

// SkippedBlock is a question block that did not make it into the schema.
type SkippedBlock struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Report summarizes one extraction.
type Report struct {
	Blocks  int            `json:"blocks"`
	Skipped []SkippedBlock `json:"skipped,omitempty"`
}

// Extractor turns DOM snapshots into schemas and hands them to a FormRepository.
type Extractor struct {
	cfg    config.FormConfig
	repo   schemas.FormRepository
	logger *zap.Logger
}

// New creates an Extractor. repo may be nil when only Extract is used.
func New(cfg config.FormConfig, repo schemas.FormRepository, logger *zap.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		repo:   repo,
		logger: logger.Named("extractor"),
	}
}

// Extract reads the current URL and DOM of page and parses them.
func (e *Extractor) Extract(ctx context.Context, page schemas.PageSnapshotter) (*schemas.Form, *Report, error) {
	link, err := page.CurrentURL(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read page URL: %w", ErrFormUnreadable, err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to snapshot page: %w", ErrFormUnreadable, err)
	}
	return e.Parse(link, html)
}

// ExtractAndSave extracts the form and writes it for ownerID, replacing any earlier schema.
// Nothing is written when extraction fails.
func (e *Extractor) ExtractAndSave(ctx context.Context, page schemas.PageSnapshotter, ownerID string) (*schemas.Form, *Report, error) {
	if e.repo == nil {
		return nil, nil, fmt.Errorf("extractor has no form repository")
	}
	form, report, err := e.Extract(ctx, page)
	if err != nil {
		return nil, report, err
	}
	if err := e.repo.Save(ctx, ownerID, form); err != nil {
		return nil, report, fmt.Errorf("failed to save extracted form: %w", err)
	}
	e.logger.Info("Form schema saved.",
		zap.String("owner_id", ownerID),
		zap.String("title", form.Title),
		zap.Int("questions", len(form.Questions)),
	)
	return form, report, nil
}

// Parse maps an HTML snapshot into a schema. sourceLink is recorded as-is.
func (e *Extractor) Parse(sourceLink, html string) (*schemas.Form, *Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse page markup: %w", ErrFormUnreadable, err)
	}
	sel := e.cfg.Selectors

	container := doc.Find(sel.Container).First()
	if container.Length() == 0 {
		e.logger.Error("Form container not found.", zap.String("selector", sel.Container), zap.String("link", sourceLink))
		return nil, nil, fmt.Errorf("%w: %w", ErrFormUnreadable, ErrContainerNotFound)
	}

	titleNode := container.Find(sel.Title).First()
	if titleNode.Length() == 0 {
		e.logger.Error("Form title not found.", zap.String("selector", sel.Title), zap.String("link", sourceLink))
		return nil, nil, fmt.Errorf("%w: %w", ErrFormUnreadable, ErrTitleNotFound)
	}

	blocks := container.Find(sel.Question)
	if blocks.Length() == 0 {
		e.logger.Error("No question blocks found.", zap.String("selector", sel.Question), zap.String("link", sourceLink))
		return nil, nil, fmt.Errorf("%w: %w", ErrFormUnreadable, ErrNoQuestions)
	}

	form := &schemas.Form{
		SourceLink: sourceLink,
		Title:      strings.TrimSpace(titleNode.Text()),
		Questions:  make([]schemas.Question, 0, blocks.Length()),
	}
	report := &Report{Blocks: blocks.Length()}

	blocks.Each(func(i int, block *goquery.Selection) {
		q, reason, ok := e.parseBlock(block)
		if !ok {
			e.logger.Warn("Skipping question block.", zap.Int("block", i), zap.String("reason", reason))
			report.Skipped = append(report.Skipped, SkippedBlock{Index: i, Reason: reason})
			return
		}
		q.PageIndex = schemas.IntPtr(i)
		form.Questions = append(form.Questions, q)
	})

	e.logger.Debug("Form parsed.",
		zap.String("title", form.Title),
		zap.Int("blocks", report.Blocks),
		zap.Int("kept", len(form.Questions)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return form, report, nil
}

// parseBlock returns the question for one block, or the reason it has to be skipped.
func (e *Extractor) parseBlock(block *goquery.Selection) (schemas.Question, string, bool) {
	prompt := block.Find(e.cfg.Selectors.Prompt).First()
	if prompt.Length() == 0 {
		return schemas.Question{}, ReasonNoPrompt, false
	}

	optionNodes := block.Find(e.cfg.Selectors.Option)
	if optionNodes.Length() == 0 {
		return schemas.Question{}, ReasonNoOptions, false
	}

	options := make([]string, 0, optionNodes.Length())
	optionNodes.Each(func(_ int, o *goquery.Selection) {
		options = append(options, strings.TrimSpace(o.Text()))
	})

	inner, _ := block.Html()
	return schemas.Question{
		// The prompt is kept raw.
		Text:    prompt.Text(),
		Type:    e.classify(inner),
		Options: options,
	}, "", true
}

// classify looks for the single-choice marker first, then the multi-choice one.
func (e *Extractor) classify(innerHTML string) schemas.QuestionType {
	switch {
	case strings.Contains(innerHTML, e.cfg.Markers.SingleChoice):
		return schemas.SingleChoice
	case strings.Contains(innerHTML, e.cfg.Markers.MultiChoice):
		return schemas.MultiChoice
	default:
		return schemas.UnknownQuestion
	}
}
