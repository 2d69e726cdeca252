package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"vsmirror/internal/metrics"
	"vsmirror/internal/utils"
)

const (
	DefaultMicrosoftURL = "https://marketplace.visualstudio.com/_apis/public/gallery/extensionquery"
	DefaultOpenVSXURL   = "https://open-vsx.org"

	DefaultPageSize  = 100
	DefaultMaxPages  = 50
	DefaultBatchSize = 50
)

type Options struct {
	URL       string
	PageSize  int
	MaxPages  int
	BatchSize int
	Timeout   time.Duration
	Cache     *Cache
	Logger    *utils.Logger
	Metrics   *metrics.Metrics
	Client    *http.Client
}

func (o Options) withDefaults(url string) Options {
	if o.URL == "" {
		o.URL = url
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = utils.Discard()
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// Marketplace queries the Visual Studio Marketplace gallery API.
type Marketplace struct {
	opts Options
}

func NewMicrosoft(opts Options) *Marketplace {
	return &Marketplace{opts: opts.withDefaults(DefaultMicrosoftURL)}
}

func (m *Marketplace) Name() string {
	return string(TypeMicrosoft)
}

// Query resolves ids in batches, following the pages of each answer.
// Unknown ids are absent from the result.
func (m *Marketplace) Query(ctx context.Context, ids []string) ([]Extension, error) {
	ids = uniqueIDs(ids)
	var extensions []Extension

	for start := 0; start < len(ids); start += m.opts.BatchSize {
		end := start + m.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}

		batch, err := m.queryBatch(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, batch...)
	}

	m.opts.Logger.LogDebug("marketplace returned %d extension(s) for %d id(s)", len(extensions), len(ids))
	return extensions, nil
}

func (m *Marketplace) queryBatch(ctx context.Context, ids []string) ([]Extension, error) {
	var extensions []Extension

	for page := 1; page <= m.opts.MaxPages; page++ {
		result, err := m.queryPage(ctx, NewQuery(ids, page, m.opts.PageSize))
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, result.Extensions...)

		if len(result.Extensions) < m.opts.PageSize {
			return extensions, nil
		}
		if total := result.TotalCount(); total >= 0 && len(extensions) >= total {
			return extensions, nil
		}
	}

	m.opts.Logger.LogWarning("stopped after %d pages of marketplace results", m.opts.MaxPages)
	return extensions, nil
}

func (m *Marketplace) queryPage(ctx context.Context, query Query) (Result, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return Result{}, fmt.Errorf("failed to serialize request: %w", err)
	}

	data, cached := m.opts.Cache.Load(body)
	if cached {
		m.opts.Logger.LogDebug("load cached response %s", cacheKey(body))
	} else {
		data, err = m.post(ctx, body)
		m.opts.Metrics.RecordQuery(m.Name(), err)
		if err != nil {
			return Result{}, err
		}
		if err := m.opts.Cache.Store(body, data); err != nil {
			m.opts.Logger.LogWarning("cannot cache response: %v", err)
		}
	}

	return decodeResult(data, m.opts.Logger), nil
}

func (m *Marketplace) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(utils.ContentTypeHeader, utils.JSONContentType)
	req.Header.Set(utils.AcceptHeader, utils.HTTPAPIVersion)
	req.Header.Set("User-Agent", utils.UserAgent)

	resp, err := m.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invalid status: %d, body: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

// decodeResult never fails: an answer that cannot be read holds no
// extension.
func decodeResult(data []byte, logger *utils.Logger) Result {
	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		logger.LogWarning("failed to parse marketplace response: %v", err)
		return Result{}
	}
	if len(response.Results) == 0 {
		return Result{}
	}
	return response.Results[0]
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		key := strings.ToLower(id)
		if id == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
