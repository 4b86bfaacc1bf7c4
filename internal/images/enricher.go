// Package images resolves chat image attachments to inline data so vision
// models can consume them. Fetches run concurrently; an attachment that fails
// to download is dropped rather than failing the request.
package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"chatgate-backend/internal/models"
)

const (
	maxWorkers   = 4
	maxImageSize = 10 << 20
)

type Enricher struct {
	httpClient *http.Client
}

func NewEnricher() *Enricher {
	return &Enricher{httpClient: &http.Client{Timeout: 20 * time.Second}}
}

type fetched struct {
	messageID string
	dataURL   string
}

// Enrich downloads every attachment and returns data URLs keyed by message id.
// Attachments that already carry inline data pass through untouched.
func (e *Enricher) Enrich(ctx context.Context, attachments []models.ChatImage) map[string]string {
	if len(attachments) == 0 {
		return nil
	}

	jobs := make(chan models.ChatImage)
	results := make(chan fetched, len(attachments))

	var wg sync.WaitGroup
	workers := maxWorkers
	if len(attachments) < workers {
		workers = len(attachments)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for img := range jobs {
				dataURL, err := e.resolve(ctx, img)
				if err != nil {
					log.Printf("images: skipping attachment for message %s: %v", img.MessageID, err)
					continue
				}
				results <- fetched{messageID: img.MessageID, dataURL: dataURL}
			}
		}()
	}

	for _, img := range attachments {
		jobs <- img
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make(map[string]string, len(attachments))
	for r := range results {
		out[r.messageID] = r.dataURL
	}
	return out
}

func (e *Enricher) resolve(ctx context.Context, img models.ChatImage) (string, error) {
	if len(img.URL) > 5 && img.URL[:5] == "data:" {
		return img.URL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return "", fmt.Errorf("images: create request: %w", err)
	}

	res, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("images: fetch: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("images: fetch returned %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("images: read body: %w", err)
	}
	if len(body) > maxImageSize {
		return "", fmt.Errorf("images: attachment exceeds %d bytes", maxImageSize)
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(body)), nil
}

// MarkTurns flags every turn that has a resolved attachment. The input slice
// is not mutated.
func MarkTurns(turns []models.ChatTurn, enriched map[string]string) []models.ChatTurn {
	if len(enriched) == 0 {
		return turns
	}
	out := make([]models.ChatTurn, len(turns))
	copy(out, turns)
	for i := range out {
		if _, ok := enriched[out[i].ID]; ok {
			out[i].HasImage = true
		}
	}
	return out
}
