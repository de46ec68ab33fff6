package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dagu-org/jobloop/internal/cmn/fileutil"
	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
	"github.com/go-resty/resty/v2"
	"github.com/itchyny/gojq"
)

const defaultFetchTimeout = 30 * time.Second

func init() {
	Register("http_fetch", "GET each URL and append the responses to a file as JSON lines", HTTPFetch)
}

// HTTPFetchArgs are the arguments of HTTPFetch.
type HTTPFetchArgs struct {
	URLs    []string          `mapstructure:"urls"`
	Output  string            `mapstructure:"output"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
	// Query is a jq expression applied to JSON responses before they are
	// written. A query yielding several values stores them as an array.
	Query   string            `mapstructure:"query"`
}

// FetchRecord is one line written by HTTPFetch.
type FetchRecord struct {
	URL       string          `json:"url"`
	Status    int             `json:"status"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Body      json.RawMessage `json:"body,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// HTTPFetch requests one URL per resumption and appends the response to
// Output. A non-2xx response fails the step.
func HTTPFetch(_ context.Context, args ...any) (core.Step, error) {
	var a HTTPFetchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.URLs) == 0 {
		return nil, errors.New("http_fetch: urls is required")
	}
	if a.Output == "" {
		return nil, errors.New("http_fetch: output is required")
	}
	if a.Timeout <= 0 {
		a.Timeout = defaultFetchTimeout
	}
	var query *gojq.Query
	if a.Query != "" {
		q, err := gojq.Parse(a.Query)
		if err != nil {
			return nil, fmt.Errorf("http_fetch: invalid query: %w", err)
		}
		query = q
	}

	client := resty.New().
		SetTimeout(a.Timeout).
		SetHeader("User-Agent", "jobloop").
		SetHeaders(a.Headers)

	f := &fetcher{client: client, output: a.Output, query: query}
	return core.Iterate(len(a.URLs), func(ctx context.Context, i int) error {
		return f.fetch(ctx, a.URLs[i])
	}, f.close), nil
}

type fetcher struct {
	client *resty.Client
	output string
	query  *gojq.Query
	file   *os.File
	enc    *json.Encoder
}

func (f *fetcher) fetch(ctx context.Context, url string) error {
	ctx = logger.WithValues(ctx, tag.URL(url))

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to fetch %s: unexpected status %s", url, resp.Status())
	}

	record := FetchRecord{URL: url, Status: resp.StatusCode(), FetchedAt: resp.ReceivedAt()}
	if body := resp.Body(); json.Valid(body) {
		if record.Body, err = f.apply(ctx, body); err != nil {
			return fmt.Errorf("failed to query %s: %w", url, err)
		}
	} else {
		record.Text = string(body)
	}

	if f.file == nil {
		file, err := fileutil.OpenOrCreateFile(f.output)
		if err != nil {
			return err
		}
		f.file = file
		f.enc = json.NewEncoder(file)
	}
	if err := f.enc.Encode(record); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.output, err)
	}
	logger.Info(ctx, "Fetched", tag.Status(resp.Status()), tag.File(f.output))
	return nil
}

// apply runs the query, if any, over a JSON body.
func (f *fetcher) apply(ctx context.Context, body []byte) (json.RawMessage, error) {
	if f.query == nil {
		return body, nil
	}
	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, err
	}

	var results []any
	iter := f.query.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, err
		}
		results = append(results, v)
	}

	if len(results) == 1 {
		return json.Marshal(results[0])
	}
	return json.Marshal(results)
}

func (f *fetcher) close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
