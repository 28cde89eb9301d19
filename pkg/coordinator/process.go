package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mywio/reelsaver/pkg/core"
	"github.com/mywio/reelsaver/pkg/download"
	"github.com/mywio/reelsaver/pkg/metrics"
	"github.com/mywio/reelsaver/pkg/reel"
)

type serviceRequest struct {
	InstagramURL string `json:"instagram_url"`
}

// Process runs the pipeline for one reel address and always produces a
// result. Failures are reported in the result, never returned.
func (c *Coordinator) Process(ctx context.Context, url string) reel.Result {
	start := time.Now()
	logger := c.logger.With("url", url)
	logger.Info("Processing reel")

	video, err := c.fetchVideo(ctx, url)
	if err != nil {
		logger.Error("Processing service call failed", "error", err)
		return c.finish(ctx, url, start, "processing_error", reel.ProcessingFailed(err), map[string]interface{}{
			"stage": "processing",
			"error": err.Error(),
		})
	}
	metrics.ServiceResponseBytes.Observe(float64(len(video)))

	blobURL := c.blobs.Create(video, reel.MimeType)
	id, err := c.downloads.Download(ctx, download.Options{
		URL:      blobURL,
		Filename: c.cfg.Filename,
		SaveAs:   true,
	})
	c.blobs.Revoke(blobURL)

	if err != nil || id == 0 {
		derr := &reel.DownloadEnqueueError{Err: err}
		logger.Error("Download could not be enqueued", "error", derr)
		return c.finish(ctx, url, start, "download_error", reel.DownloadFailed(derr), map[string]interface{}{
			"stage": "download",
			"error": derr.Error(),
		})
	}

	logger.Info("Reel processed, download enqueued", "download_id", id, "bytes", len(video))
	return c.finish(ctx, url, start, "success", reel.Succeeded(), map[string]interface{}{
		"download_id": id,
		"bytes":       len(video),
	})
}

func (c *Coordinator) finish(ctx context.Context, url string, start time.Time, outcome string, res reel.Result, details map[string]interface{}) reel.Result {
	elapsed := time.Since(start)
	metrics.ReelRequestsTotal.WithLabelValues(outcome).Inc()
	metrics.ReelProcessingDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	details["duration"] = elapsed
	ev := core.InternalEvent{
		Type:    core.EventReelProcessed,
		Source:  c.Name(),
		URL:     url,
		Details: details,
		String:  res.Message,
	}
	if !res.Success {
		ev.Type = core.EventReelFailed
	}
	c.registry.Publish(context.WithoutCancel(ctx), ev)
	return res
}

// fetchVideo posts the reel address to the service and reads the processed
// video. Errors are typed by the step that failed.
func (c *Coordinator) fetchVideo(ctx context.Context, url string) ([]byte, error) {
	body, err := json.Marshal(serviceRequest{InstagramURL: url})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServiceURL+"/process_video", bytes.NewReader(body))
	if err != nil {
		return nil, &reel.NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.serviceToken(ctx); token.IsSet() {
		req.Header.Set("Authorization", token.BearerHeader())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &reel.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &reel.HTTPStatusError{Status: resp.StatusCode}
	}

	video, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &reel.BodyReadError{Err: err}
	}
	return video, nil
}

// serviceToken prefers a token published by secrets plugins over the
// configured one. Plugin failures are logged and skipped.
func (c *Coordinator) serviceToken(ctx context.Context) core.Secret {
	token := c.token
	for _, p := range c.registry.GetPluginsWithCapability(core.CapabilitySecrets) {
		res, err := p.Execute(ctx, "get_secrets", map[string]interface{}{
			"keys": []string{TokenSecretKey},
		})
		if err != nil {
			c.logger.Warn("Failed to fetch secrets from plugin", "plugin", p.Name(), "error", err)
			continue
		}
		if secrets, ok := res.(map[string]string); ok {
			if v := secrets[TokenSecretKey]; v != "" {
				token = core.NewSecret(v)
			}
		}
	}
	return token
}
