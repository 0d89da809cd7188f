package executor

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/barrulus/clepho/internal/llm"
	"github.com/barrulus/clepho/internal/store"
)

// runLLMBatch describes and embeds every candidate photo lacking a
// description, fanning work across opts.LLMConcurrency workers the way
// the teacher's analyzePhotosParallel bounds concurrency with a semaphore
// channel (internal/sorter/sorter.go). Per-photo failures are logged and
// counted, never fatal to the batch (§6.5, §7 ExternalUnavailable).
func (e *Executor) runLLMBatch(ctx context.Context, task store.ScheduledTask) error {
	if e.llm == nil {
		return fmt.Errorf("executor: llm batch task %d: no LLM client configured", task.ID)
	}

	photos, err := e.candidates(ctx, task)
	if err != nil {
		return err
	}

	prompt := e.opts.DefaultPrompt
	if p, err := e.store.GetDirectoryPrompt(ctx, task.TargetPath); err == nil && p != "" {
		prompt = p
	}

	semaphore := make(chan struct{}, e.opts.LLMConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed int

	for _, photo := range photos {
		if photo.Description != "" {
			continue
		}
		wg.Add(1)
		go func(p store.Photo) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				return
			}
			if err := e.describeAndEmbed(ctx, p, prompt); err != nil {
				e.logger.Warn("llm: photo failed", "photo_id", p.ID, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(photo)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	usage := e.llm.Usage()
	e.logger.Info("llm batch completed", "target", task.TargetPath,
		"processed", len(photos), "failed", failed,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens,
		"cost_usd", usage.TotalCostUSD)
	return nil
}

func (e *Executor) describeAndEmbed(ctx context.Context, p store.Photo, prompt string) error {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}

	desc, err := e.llm.Describe(ctx, data, prompt)
	if err != nil {
		return fmt.Errorf("describe: %w", err)
	}
	if err := e.store.UpdateDescription(ctx, p.ID, desc.Text); err != nil {
		return fmt.Errorf("save description: %w", err)
	}

	if desc.Text == "" {
		return nil
	}
	vector, err := e.llm.Embed(ctx, desc.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := e.store.PutEmbedding(ctx, p.ID, llm.EncodeVector(vector), e.llm.Name()); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}
