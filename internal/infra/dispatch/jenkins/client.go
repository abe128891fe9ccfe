// Package jenkins integrates with a Jenkins controller: it dispatches the diff
// generation and integration jobs and fetches build artifacts for mirroring.
package jenkins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/diffbridge/diffbridge/internal/domain/validation"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
)

// Config holds connection settings for one Jenkins controller.
type Config struct {
	// BaseURL is the root of the Jenkins instance, e.g. https://ci.internal.
	BaseURL string

	// Username and APIToken authenticate requests via HTTP basic auth.
	Username string
	APIToken string

	// GenerateJobName and IntegrationJobName are the Jenkins job names behind
	// the two JobKinds.
	GenerateJobName    string
	IntegrationJobName string

	// Timeout bounds each HTTP request. Zero means 30 seconds.
	Timeout time.Duration

	// RequestsPerSecond and Burst throttle calls against the Jenkins API so a
	// storm of webhook-driven artifact fetches cannot overwhelm the
	// controller. Zero values mean 5 rps with a burst of 10.
	RequestsPerSecond float64
	Burst             int
}

var (
	_ validation.JobDispatcher   = (*Client)(nil)
	_ validation.ArtifactFetcher = (*Client)(nil)
)

// Client talks to Jenkins over its remote access API. Dispatching uses the
// buildWithParameters endpoint; the queue item URL Jenkins returns in the
// Location header becomes the correlation id our webhooks carry back.
type Client struct {
	baseURL  string
	username string
	apiToken string
	jobNames map[validation.JobKind]string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
	tracer     trace.Tracer
}

// NewClient creates a Jenkins client from the given configuration.
func NewClient(cfg Config, log *logger.Logger, tracer trace.Tracer) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jenkins base url is required")
	}
	if cfg.GenerateJobName == "" || cfg.IntegrationJobName == "" {
		return nil, fmt.Errorf("jenkins job names are required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		apiToken: cfg.APIToken,
		jobNames: map[validation.JobKind]string{
			validation.JobKindGenerateDiff:   cfg.GenerateJobName,
			validation.JobKindRunIntegration: cfg.IntegrationJobName,
		},
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     log.With("component", "jenkins_client"),
		tracer:     tracer,
	}, nil
}

// Dispatch triggers the Jenkins job backing the given kind and returns the
// correlation id the build will report back with. Jenkins responds 201 with a
// queue item URL in the Location header; when that header is absent a fresh
// uuid is synthesized so the dispatch still gets a usable id.
func (c *Client) Dispatch(ctx context.Context, kind validation.JobKind, params map[string]string) (string, error) {
	jobName, ok := c.jobNames[kind]
	if !ok {
		return "", fmt.Errorf("no jenkins job configured for kind %q", kind)
	}

	ctx, span := c.tracer.Start(ctx, "jenkins.dispatch",
		trace.WithAttributes(
			attribute.String("job_kind", string(kind)),
			attribute.String("job_name", jobName),
		),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/job/%s/buildWithParameters", c.baseURL, url.PathEscape(jobName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("dispatching %s: %w", jobName, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "unexpected status")
		return "", fmt.Errorf("dispatching %s: jenkins returned %d", jobName, resp.StatusCode)
	}

	correlationID := correlationIDFromLocation(resp.Header.Get("Location"))
	if correlationID == "" {
		correlationID = uuid.NewString()
		c.logger.Warn(ctx, "jenkins response had no location header, synthesized correlation id",
			"job_name", jobName, "correlation_id", correlationID)
	}
	span.SetAttributes(attribute.String("correlation_id", correlationID))

	c.logger.Info(ctx, "jenkins job dispatched",
		"job_name", jobName, "correlation_id", correlationID)
	return correlationID, nil
}

// FetchArtifact downloads a build artifact, typically the generated diff, so
// the caller can mirror it into blob storage.
func (c *Client) FetchArtifact(ctx context.Context, artifactURL string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "jenkins.fetch_artifact",
		trace.WithAttributes(attribute.String("url", artifactURL)),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building artifact request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetching artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "unexpected status")
		return nil, fmt.Errorf("fetching artifact: jenkins returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reading artifact body: %w", err)
	}
	span.SetAttributes(attribute.Int("artifact_bytes", len(data)))
	return data, nil
}

// correlationIDFromLocation extracts the queue item id from a Location header
// like https://ci/queue/item/123/. The full trailing path element is the id;
// an empty header yields an empty id.
func correlationIDFromLocation(location string) string {
	location = strings.TrimRight(strings.TrimSpace(location), "/")
	if location == "" {
		return ""
	}
	if idx := strings.LastIndex(location, "/"); idx >= 0 {
		return location[idx+1:]
	}
	return location
}
