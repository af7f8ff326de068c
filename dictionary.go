package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// LookupResult is the three-valued outcome of a dictionary check.
type LookupResult int

const (
	WordFound LookupResult = iota
	WordNotFound
	LookupUnavailable
)

// Dictionary answers "is this a real word". Word hunt fails open on
// LookupUnavailable: a flaky connection should never block the round.
type Dictionary interface {
	Lookup(ctx context.Context, word string) LookupResult
}

// httpDictionary queries a dictionaryapi.dev-style endpoint, which answers
// 200 for known words and 404 for unknown ones.
type httpDictionary struct {
	baseURL string
	client  *http.Client
}

func newHTTPDictionary(cfg *Config) *httpDictionary {
	return &httpDictionary{
		baseURL: strings.TrimSuffix(cfg.dictionaryURL, "/"),
		client:  &http.Client{Timeout: cfg.dictionaryTimeout},
	}
}

func (d *httpDictionary) Lookup(ctx context.Context, word string) LookupResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/"+url.PathEscape(word), nil)
	if err != nil {
		return LookupUnavailable
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return LookupUnavailable
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return WordFound
	case http.StatusNotFound:
		return WordNotFound
	default:
		return LookupUnavailable
	}
}
