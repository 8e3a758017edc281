package processor

import (
	"strings"

	"github.com/xhad/vecingest/internal/models"
)

type ProcessorConfig struct {
	ChunkSize      int // bytes
	ChunkOverlap   int // bytes carried into the next chunk
	MinChunkLength int
}

// Processor splits crawled pages into documents small enough to embed.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength <= 0 {
		config.MinChunkLength = 100
	}

	return Processor{
		config: config,
	}
}

// Process returns one document per chunk. Every chunk keeps the page URL as
// its source along with the page content type and language.
func (p *Processor) Process(pages []models.Page) []models.Document {
	var docs []models.Document

	for _, page := range pages {
		meta := models.Metadata{
			Source:      page.URL,
			ContentType: page.ContentType,
			Language:    page.Language,
		}
		for _, chunk := range p.splitIntoChunks(cleanText(page.Content)) {
			docs = append(docs, models.Document{
				Content:   chunk,
				Metadata:  meta,
				Embedding: []float32{},
			})
		}
	}

	return docs
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (p *Processor) splitIntoChunks(text string) []string {
	var chunks []string
	current := strings.Builder{}

	for _, sentence := range splitIntoSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > p.config.ChunkSize {
			if current.Len() >= p.config.MinChunkLength {
				chunks = append(chunks, current.String())
			}

			carry := overlap(current.String(), p.config.ChunkOverlap)
			current.Reset()
			current.WriteString(carry)
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}

	if current.Len() >= p.config.MinChunkLength {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// overlap returns at most n trailing bytes of s, starting at a word boundary.
func overlap(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	tail := s[len(s)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		return tail[i+1:]
	}
	return ""
}

func splitIntoSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
