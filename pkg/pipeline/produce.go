package pipeline

import (
	"context"

	"github.com/xhad/vecingest/internal/models"
)

// produce embeds one document at a time.
func (p *Pipeline) produce(ctx context.Context, docs []models.Document, outcomes chan<- models.Outcome) error {
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		out := p.embedder.Embed(ctx, doc)
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case outcomes <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// produceOrdered embeds on the worker pool. Every document gets a result slot
// queued in input order and a forwarder drains the slots one by one, so the
// consumer sees the same order as with produce. The slot queue also bounds
// how far the workers run ahead.
func (p *Pipeline) produceOrdered(ctx context.Context, docs []models.Document, outcomes chan<- models.Outcome) error {
	slots := make(chan chan models.Outcome, p.workers)
	forwarded := make(chan error, 1)
	go func() {
		forwarded <- forward(ctx, slots, outcomes)
	}()

	err := p.submit(ctx, docs, slots)
	close(slots)

	if fwdErr := <-forwarded; err == nil {
		err = fwdErr
	}
	return err
}

func (p *Pipeline) submit(ctx context.Context, docs []models.Document, slots chan<- chan models.Outcome) error {
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		slot := make(chan models.Outcome, 1)
		select {
		case slots <- slot:
		case <-ctx.Done():
			return ctx.Err()
		}

		doc := doc
		if err := p.pool.Submit(func() {
			slot <- p.embedder.Embed(ctx, doc)
		}); err != nil {
			doc.Embedding = []float32{}
			slot <- models.Outcome{Kind: models.NotEmbedded, Document: doc, Err: err}
			p.logger.Error("failed to submit embedding task", "err", err)
			return err
		}
	}
	return nil
}

func forward(ctx context.Context, slots <-chan chan models.Outcome, outcomes chan<- models.Outcome) error {
	for slot := range slots {
		out := <-slot
		if ctx.Err() != nil {
			continue
		}
		select {
		case outcomes <- out:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}
