package store

// S3-compatible object store backend (stdlib only), signed with AWS
// Signature Version 4. Adapted from the blob package's S3Store: Atlas has
// no multi-tenant key prefix, so the tenant segment is dropped and object
// keys map straight onto the bucket/prefix namespace; Put is added so the
// ingest/publish path can write through the same client used to serve
// reads.

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

// S3Options configures an S3Store.
type S3Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Prefix       string
	HTTPTimeout  time.Duration
	MaxBodyBytes int64
}

// S3Store is an S3-compatible Backend reachable over HTTP, with no
// dependency on the AWS SDK.
type S3Store struct {
	opts S3Options
	hc   *http.Client
	u    *url.URL

	mu               sync.Mutex
	consecutiveFails int
	lastErr          string
	reachable        atomic.Bool
}

func NewS3Store(opts S3Options) (*S3Store, error) {
	o := normalizeS3Options(opts)
	if o.Endpoint == "" || o.Bucket == "" || o.AccessKey == "" || o.SecretKey == "" {
		return nil, fmt.Errorf("%w: endpoint/bucket/access/secret required", ErrInvalid)
	}
	uu, err := url.Parse(o.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint parse: %v", ErrInvalid, err)
	}
	if uu.Scheme != "http" && uu.Scheme != "https" {
		return nil, fmt.Errorf("%w: endpoint scheme must be http/https", ErrInvalid)
	}
	s := &S3Store{opts: o, hc: &http.Client{Timeout: o.HTTPTimeout}, u: uu}
	s.reachable.Store(true)
	return s, nil
}

func (s *S3Store) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.consecutiveFails++
		s.lastErr = err.Error()
		s.reachable.Store(false)
		return
	}
	s.consecutiveFails = 0
	s.lastErr = ""
	s.reachable.Store(true)
}

func (s *S3Store) Put(ctx context.Context, objectKey, contentType string, data []byte) error {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return fmt.Errorf("%w: objectKey required", ErrInvalid)
	}
	if data == nil {
		data = []byte{}
	}
	if s.opts.MaxBodyBytes > 0 && int64(len(data)) > s.opts.MaxBodyBytes {
		return fmt.Errorf("%w: body exceeds max bytes", ErrTooLarge)
	}
	path, err := s.objectPath(objectKey)
	if err != nil {
		return err
	}
	reqURL := s.u.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL.String(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: new request: %v", ErrTransport, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	if err := s.sign(req, sha256Hex(data)); err != nil {
		return err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		s.record(err)
		return fmt.Errorf("%w: do: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 32*1024))
		err := fmt.Errorf("%w: put status=%d body=%s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(b)))
		s.record(err)
		return err
	}
	s.record(nil)
	return nil
}

func (s *S3Store) Get(ctx context.Context, objectKey string) ([]byte, error) {
	path, err := s.objectPath(objectKey)
	if err != nil {
		return nil, err
	}
	reqURL := s.u.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", ErrTransport, err)
	}
	if err := s.sign(req, sha256Hex(nil)); err != nil {
		return nil, err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		s.record(err)
		return nil, fmt.Errorf("%w: do: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		s.record(nil)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectKey)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 32*1024))
		err := fmt.Errorf("%w: get status=%d body=%s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(b)))
		s.record(err)
		return nil, err
	}
	var r io.Reader = resp.Body
	if s.opts.MaxBodyBytes > 0 {
		r = io.LimitReader(resp.Body, s.opts.MaxBodyBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		s.record(err)
		return nil, fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
	if s.opts.MaxBodyBytes > 0 && int64(len(b)) > s.opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, objectKey)
	}
	s.record(nil)
	return b, nil
}

func (s *S3Store) Head(ctx context.Context, objectKey string) (int64, error) {
	path, err := s.objectPath(objectKey)
	if err != nil {
		return 0, err
	}
	reqURL := s.u.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, reqURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: new request: %v", ErrTransport, err)
	}
	if err := s.sign(req, sha256Hex(nil)); err != nil {
		return 0, err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		s.record(err)
		return 0, fmt.Errorf("%w: do: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		s.record(nil)
		return 0, fmt.Errorf("%w: %s", ErrNotFound, objectKey)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: head status=%d", ErrTransport, resp.StatusCode)
		s.record(err)
		return 0, err
	}
	s.record(nil)
	var n int64
	if cl := strings.TrimSpace(resp.Header.Get("Content-Length")); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil && v >= 0 {
			n = v
		}
	}
	return n, nil
}

const catalogKeyS3 = "catalog.json"

func (s *S3Store) FetchCatalog(ctx context.Context, ifNoneMatchETag string) (CatalogFetch, error) {
	b, err := s.Get(ctx, catalogKeyS3)
	if err != nil {
		return CatalogFetch{}, err
	}
	etag := canonicaljson.SHA256Hex(b)
	if ifNoneMatchETag != "" && ifNoneMatchETag == etag {
		return CatalogFetch{Status: CatalogNotModified, ETag: etag}, nil
	}
	var cat model.Catalog
	if err := json.Unmarshal(b, &cat); err != nil {
		return CatalogFetch{}, fmt.Errorf("%w: decode catalog: %v", ErrTransport, err)
	}
	return CatalogFetch{Status: CatalogUpdated, ETag: etag, Catalog: cat}, nil
}

func (s *S3Store) FetchManifest(ctx context.Context, dataset model.DatasetID) (model.Manifest, error) {
	b, err := s.Get(ctx, artifact.ObjectKey(dataset, artifact.KindManifest))
	if err != nil {
		return model.Manifest{}, err
	}
	var m model.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return model.Manifest{}, fmt.Errorf("%w: decode manifest: %v", ErrTransport, err)
	}
	return m, nil
}

func (s *S3Store) FetchSQLiteBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, artifact.ObjectKey(dataset, artifact.KindGeneSummary))
}

func (s *S3Store) FetchFASTABytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, dataset.DerivedDir()+"/sequence.fasta")
}

func (s *S3Store) FetchFAIBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, dataset.DerivedDir()+"/sequence.fasta.fai")
}

func (s *S3Store) FetchReleaseGeneIndexBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, artifact.ObjectKey(dataset, artifact.KindReleaseGeneIndex))
}

func (s *S3Store) RegistryHealth(ctx context.Context) []SourceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []SourceHealth{{
		Name:             "s3:" + s.opts.Bucket,
		Reachable:        s.reachable.Load(),
		LastError:        s.lastErr,
		ConsecutiveFails: s.consecutiveFails,
	}}
}

func (s *S3Store) BackendTag() string { return "s3" }

func (s *S3Store) objectPath(objectKey string) (string, error) {
	prefix := strings.Trim(strings.TrimSpace(s.opts.Prefix), "/")
	if prefix == "" {
		prefix = "atlas"
	}
	objectKey = strings.Trim(strings.TrimSpace(objectKey), "/")
	if objectKey == "" || strings.Contains(objectKey, "..") {
		return "", fmt.Errorf("%w: invalid object key", ErrInvalid)
	}
	parts := []string{s.opts.Bucket, prefix}
	parts = append(parts, strings.Split(objectKey, "/")...)
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: empty path segment", ErrInvalid)
		}
		escaped = append(escaped, url.PathEscape(p))
	}
	return "/" + strings.Join(escaped, "/"), nil
}

func (s *S3Store) sign(req *http.Request, payloadHashHex string) error {
	if req == nil {
		return fmt.Errorf("%w: request nil", ErrInvalid)
	}
	t := time.Now().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")
	region := s.opts.Region
	if region == "" {
		region = "us-east-1"
	}
	service := "s3"

	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHashHex)
	if strings.TrimSpace(s.opts.SessionToken) != "" {
		req.Header.Set("x-amz-security-token", strings.TrimSpace(s.opts.SessionToken))
	}
	canonical, signedHeaders := canonicalHeaders(req.Header)
	canonicalURI := req.URL.EscapedPath()
	if canonicalURI == "" {
		canonicalURI = "/"
	}
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		req.URL.RawQuery,
		canonical,
		signedHeaders,
		payloadHashHex,
	}, "\n")
	crHash := sha256Hex([]byte(canonicalRequest))
	scope := strings.Join([]string{dateStamp, region, service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{"AWS4-HMAC-SHA256", amzDate, scope, crHash}, "\n")
	signingKey := deriveSigningKey(s.opts.SecretKey, dateStamp, region, service)
	sig := hmacSHA256Hex(signingKey, []byte(stringToSign))
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.opts.AccessKey, scope, signedHeaders, sig,
	))
	return nil
}

func canonicalHeaders(h http.Header) (canonical string, signedHeaders string) {
	names := make([]string, 0, len(h))
	seen := make(map[string]struct{}, len(h))
	for k := range h {
		kl := strings.ToLower(strings.TrimSpace(k))
		if kl == "" {
			continue
		}
		if _, ok := seen[kl]; ok {
			continue
		}
		seen[kl] = struct{}{}
		names = append(names, kl)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		vv := headerValuesCaseInsensitive(h, name)
		val := strings.Join(strings.Fields(strings.TrimSpace(strings.Join(vv, ","))), " ")
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(val)
		b.WriteString("\n")
	}
	signedHeaders = strings.Join(names, ";")
	return b.String(), signedHeaders
}

func headerValuesCaseInsensitive(h http.Header, lowerName string) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.ToLower(k) == lowerName {
			vv := h[k]
			cp := make([]string, len(vv))
			copy(cp, vv)
			return cp
		}
	}
	return nil
}

func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write(data)
	return m.Sum(nil)
}

func hmacSHA256Hex(key, data []byte) string {
	return hex.EncodeToString(hmacSHA256(key, data))
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func normalizeS3Options(o S3Options) S3Options {
	o.Endpoint = strings.TrimSpace(o.Endpoint)
	o.Bucket = strings.TrimSpace(o.Bucket)
	o.AccessKey = strings.TrimSpace(o.AccessKey)
	o.SecretKey = strings.TrimSpace(o.SecretKey)
	o.SessionToken = strings.TrimSpace(o.SessionToken)
	if strings.TrimSpace(o.Region) == "" {
		o.Region = "us-east-1"
	}
	if strings.TrimSpace(o.Prefix) == "" {
		o.Prefix = "atlas"
	} else {
		o.Prefix = strings.Trim(strings.TrimSpace(o.Prefix), "/")
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 20 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 2 * 1024 * 1024 * 1024
	}
	return o
}
