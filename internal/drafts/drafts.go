// Package drafts generates personalized email drafts for a wave's audience.
// Jobs are detached from the conversation that triggered them: the generator
// owns its store handle, paces the LLM with a rate limiter, and reports
// failures to the log only.
package drafts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/groundworkhq/campaigner/internal/export"
	"github.com/groundworkhq/campaigner/internal/genai"
	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/groundworkhq/campaigner/internal/store"
)

const personalizePrompt = `Ты адаптируешь готовое email-письмо под конкретного адресата.
Сохрани структуру и предложение, поменяй только обращение и детали под данные адресата.
Верни только текст письма.`

const (
	defaultBatchSize = 20
	defaultWorkers   = 4
	maxAttempts      = 3
	retryBackoff     = 2 * time.Second
)

// Opts configures a Generator.
type Opts struct {
	Store   store.Store
	LLM     genai.ClientInterface
	Sheets  export.Sink
	Workers int
	// RatePerSecond bounds LLM calls across all jobs.
	RatePerSecond float64
}

// Option mutates Opts.
type Option func(*Opts)

func WithWorkers(n int) Option {
	return func(o *Opts) { o.Workers = n }
}

func WithRate(perSecond float64) Option {
	return func(o *Opts) { o.RatePerSecond = perSecond }
}

// Generator runs draft-generation jobs in the background.
type Generator struct {
	store   store.Store
	llm     genai.ClientInterface
	sheets  export.Sink
	workers int
	limiter *rate.Limiter
	backoff time.Duration

	wg sync.WaitGroup
}

// NewGenerator builds a Generator. Store, LLM and Sheets are required.
func NewGenerator(st store.Store, llm genai.ClientInterface, sheets export.Sink, options ...Option) *Generator {
	opts := Opts{Store: st, LLM: llm, Sheets: sheets, Workers: defaultWorkers, RatePerSecond: 2}
	for _, opt := range options {
		opt(&opts)
	}
	return &Generator{
		store:   opts.Store,
		llm:     opts.LLM,
		sheets:  opts.Sheets,
		workers: opts.Workers,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		backoff: retryBackoff,
	}
}

// Schedule starts a job for the wave and template and returns immediately.
func (g *Generator) Schedule(waveID, templateID int64) {
	jobID := uuid.NewString()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.run(context.Background(), jobID, waveID, templateID); err != nil {
			slog.Error("Drafts.Schedule job failed", "jobID", jobID, "waveID", waveID, "error", err)
		}
	}()
}

// Wait blocks until all scheduled jobs have finished. Used on shutdown.
func (g *Generator) Wait() {
	g.wg.Wait()
}

func (g *Generator) run(ctx context.Context, jobID string, waveID, templateID int64) error {
	wave, err := g.store.GetWave(waveID)
	if err != nil {
		return fmt.Errorf("load wave %d: %w", waveID, err)
	}
	tpl, err := g.store.GetTemplate(templateID)
	if err != nil {
		return fmt.Errorf("load template %d: %w", templateID, err)
	}
	campaign, err := g.store.GetCampaign(wave.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %d: %w", wave.CampaignID, err)
	}

	leads, err := g.audience(campaign)
	if err != nil {
		return err
	}
	if len(leads) == 0 {
		slog.Info("Drafts.run no matching leads", "jobID", jobID, "waveID", waveID)
		return nil
	}
	slog.Info("Drafts.run starting", "jobID", jobID, "waveID", waveID, "leads", len(leads))

	sheetID := fmt.Sprintf("campaign_%d", campaign.ID)
	sheetName := fmt.Sprintf("wave_%d", wave.ID)
	failed := 0
	for start := 0; start < len(leads); start += defaultBatchSize {
		end := start + defaultBatchSize
		if end > len(leads) {
			end = len(leads)
		}
		rows, batchFailed := g.generateBatch(ctx, tpl, leads[start:end])
		failed += batchFailed
		if len(rows) == 0 {
			continue
		}
		if err := g.sheets.AppendRows(sheetID, sheetName, rows); err != nil {
			return fmt.Errorf("append batch to sheet %s/%s: %w", sheetID, sheetName, err)
		}
	}
	slog.Info("Drafts.run finished", "jobID", jobID, "waveID", waveID, "leads", len(leads), "failed", failed)
	return nil
}

// audience loads the campaign's lead set with its stored filters applied.
func (g *Generator) audience(campaign *models.Campaign) ([]models.Lead, error) {
	table := store.LeadTableName(campaign.OrgID)
	exists, err := g.store.RelationExists(table)
	if err != nil {
		return nil, fmt.Errorf("check lead table %s: %w", table, err)
	}
	if !exists {
		return nil, nil
	}
	leads, err := g.store.QueryRelation(table)
	if err != nil {
		return nil, fmt.Errorf("query lead table %s: %w", table, err)
	}
	if len(campaign.Filters) == 0 {
		return leads, nil
	}
	var matched []models.Lead
	for _, lead := range leads {
		if models.MatchLead(lead, campaign.Filters) {
			matched = append(matched, lead)
		}
	}
	return matched, nil
}

// generateBatch fans one batch of leads out over the worker pool. The second
// result is the number of leads whose generation exhausted its retry budget.
func (g *Generator) generateBatch(ctx context.Context, tpl *models.Template, leads []models.Lead) ([][]string, int) {
	type result struct {
		row []string
		ok  bool
	}
	jobs := make(chan models.Lead)
	results := make(chan result, len(leads))

	var wg sync.WaitGroup
	for i := 0; i < g.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lead := range jobs {
				body, err := g.personalize(ctx, tpl, lead)
				if err != nil {
					slog.Warn("Drafts.generateBatch lead failed", "email", lead.Email(), "error", err)
					results <- result{ok: false}
					continue
				}
				results <- result{row: []string{lead.Email(), tpl.Subject, body}, ok: true}
			}
		}()
	}
	for _, lead := range leads {
		jobs <- lead
	}
	close(jobs)
	wg.Wait()
	close(results)

	var rows [][]string
	failed := 0
	for r := range results {
		if r.ok {
			rows = append(rows, r.row)
		} else {
			failed++
		}
	}
	return rows, failed
}

// personalize rewrites the template body for one lead, retrying transient
// failures a fixed number of times.
func (g *Generator) personalize(ctx context.Context, tpl *models.Template, lead models.Lead) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Письмо:\n%s\n\nАдресат:\n", tpl.Body)
	for _, col := range models.LeadColumns {
		if v := lead[col]; v != "" {
			fmt.Fprintf(&b, "%s: %s\n", col, v)
		}
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
		body, err := g.llm.Generate(ctx, personalizePrompt, b.String())
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(g.backoff)
		}
	}
	return "", fmt.Errorf("personalize for %s: %w", lead.Email(), lastErr)
}
