// Package config loads Atlas's process configuration from a filesystem root
// with deterministic layering: base -> env -> env-var overrides, later
// layers winning. JSON is decoded strictly (UseNumber, no trailing tokens);
// a .yaml/.yml file is decoded with yaml.v3 into the same map[string]any
// shape, so either format layers through the same merge/decode pipeline.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bijux/atlas/pkg/canonicaljson"
)

// Options configures a Loader.
//
// Conventions:
//
//	<root>/<service>.json|yaml|yml
//	<root>/env/<env>/<service>.json|yaml|yml
//
// Env var overrides, strongest precedence:
//
//	Prefix EnvPrefix (default UPPER(service)+"_" with '-' mapped to '_'),
//	nested paths expressed with PathDelimiter (default "__"). For service
//	"atlas-server", ATLAS_SERVER_CACHE__MAX_BYTES=10000000 =>
//	{"cache":{"max_bytes":10000000}}. Values are parsed as JSON if possible,
//	otherwise treated as strings.
type Options struct {
	Service string // required, e.g. "atlas-server"
	Env     string // optional, e.g. "local", "staging", "prod"

	// ExplicitPath, if set, loads only this file (relative to root unless
	// an absolute path is given), skipping layered discovery entirely.
	ExplicitPath string

	EnableEnvOverrides bool // NewLoader always sets this to true
	EnvPrefix          string
	PathDelimiter      string // default "__"

	MaxFiles          int   // default 8
	MaxFileBytes      int64 // default 2 MiB
	MaxDepth          int   // default 32
	MaxEnvVars        int   // default 256
	MaxCanonicalBytes int64 // default 4 MiB

	OnWarn func(code, detail string)
}

type Loader struct {
	rootAbs string
	opts    Options
	reSeg   *regexp.Regexp
}

// Document is one loaded configuration file.
type Document struct {
	Path     string         `json:"path"`
	Tier     string         `json:"tier"` // base|env|explicit
	LoadedAt time.Time      `json:"loaded_at"`
	SHA256   string         `json:"sha256"`
	Data     map[string]any `json:"data"`
}

// Bundle is the fully layered and merged configuration.
type Bundle struct {
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`

	Docs     []Document     `json:"docs"`
	Merged   map[string]any `json:"merged"`
	LoadedAt time.Time      `json:"loaded_at"`

	maxCanonicalBytes int64
}

var (
	ErrInvalidRoot     = errors.New("config: invalid root")
	ErrInvalidOptions  = errors.New("config: invalid options")
	ErrPathEscape      = errors.New("config: path escapes root")
	ErrNotFound        = errors.New("config: not found")
	ErrTooManyFiles    = errors.New("config: too many files")
	ErrFileTooLarge    = errors.New("config: file too large")
	ErrUnsupportedExt  = errors.New("config: unsupported extension")
	ErrInvalidJSON     = errors.New("config: invalid json")
	ErrNotObject       = errors.New("config: top-level must be object")
	ErrInvalidYAML = errors.New("config: invalid yaml")
	ErrEnvOverride     = errors.New("config: env override invalid")
	ErrDepthExceeded   = errors.New("config: max depth exceeded")
)

func NewLoader(root string, opts Options) (*Loader, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, ErrInvalidRoot
	}
	opts.Service = strings.TrimSpace(opts.Service)
	if opts.Service == "" {
		return nil, fmt.Errorf("%w: service required", ErrInvalidOptions)
	}
	opts.Env = strings.TrimSpace(opts.Env)
	opts.ExplicitPath = strings.TrimSpace(opts.ExplicitPath)

	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 8
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 2 * 1024 * 1024
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 32
	}
	if opts.MaxEnvVars <= 0 {
		opts.MaxEnvVars = 256
	}
	if opts.MaxCanonicalBytes <= 0 {
		opts.MaxCanonicalBytes = 4 * 1024 * 1024
	}
	if opts.PathDelimiter == "" {
		opts.PathDelimiter = "__"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = strings.ToUpper(strings.ReplaceAll(opts.Service, "-", "_")) + "_"
	}
	opts.EnableEnvOverrides = true

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	absEval, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(absEval)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory", ErrInvalidRoot)
	}

	reSeg := regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	return &Loader{rootAbs: absEval, opts: opts, reSeg: reSeg}, nil
}

func (l *Loader) warn(code, detail string) {
	if l != nil && l.opts.OnWarn != nil {
		l.opts.OnWarn(strings.TrimSpace(code), strings.TrimSpace(detail))
	}
}

// LoadFile loads a single document at relPath (relative to root).
func (l *Loader) LoadFile(ctx context.Context, relPath string) (*Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	abs, rel, err := l.safeJoin(relPath)
	if err != nil {
		return nil, err
	}
	doc, err := l.readDoc(ctx, abs, "explicit")
	if err != nil {
		return nil, err
	}
	doc.Path = rel
	return &doc, nil
}

// Load loads layered configuration and applies env-var overrides.
func (l *Loader) Load(ctx context.Context) (*Bundle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var docs []Document
	merged := map[string]any{}

	if l.opts.ExplicitPath != "" {
		doc, err := l.loadAnyPath(ctx, l.opts.ExplicitPath, "explicit")
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
		merged = deepMergeDeterministic(merged, doc.Data, l.opts.MaxDepth)
	} else {
		tiers := l.computeTierPaths()
		if len(tiers) > l.opts.MaxFiles {
			return nil, ErrTooManyFiles
		}
		for _, tp := range tiers {
			doc, err := l.loadAnyPath(ctx, tp.path, tp.tier)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			docs = append(docs, *doc)
			merged = deepMergeDeterministic(merged, doc.Data, l.opts.MaxDepth)
		}
	}

	if l.opts.EnableEnvOverrides {
		envMap, err := l.envOverrides()
		if err != nil {
			return nil, err
		}
		if len(envMap) > 0 {
			merged = deepMergeDeterministic(merged, envMap, l.opts.MaxDepth)
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Tier != docs[j].Tier {
			return tierRank(docs[i].Tier) < tierRank(docs[j].Tier)
		}
		return docs[i].Path < docs[j].Path
	})

	return &Bundle{
		Service:           l.opts.Service,
		Env:               l.opts.Env,
		Docs:              docs,
		Merged:            merged,
		LoadedAt:          time.Now().UTC(),
		maxCanonicalBytes: l.opts.MaxCanonicalBytes,
	}, nil
}

// CanonicalJSON returns deterministic JSON bytes for the merged config,
// bounded by the loader's MaxCanonicalBytes.
func (b *Bundle) CanonicalJSON() ([]byte, error) {
	if b == nil {
		return nil, ErrInvalidOptions
	}
	maxBytes := b.maxCanonicalBytes
	if maxBytes <= 0 {
		maxBytes = 4 * 1024 * 1024
	}
	return canonicaljson.MarshalBounded(b.Merged, maxBytes)
}

type tierPath struct {
	tier string
	path string
}

func (l *Loader) computeTierPaths() []tierPath {
	cands := []string{
		l.opts.Service + ".json",
		l.opts.Service + ".yaml",
		l.opts.Service + ".yml",
	}
	var out []tierPath
	for _, c := range cands {
		out = append(out, tierPath{tier: "base", path: c})
	}
	if l.opts.Env != "" {
		for _, c := range cands {
			out = append(out, tierPath{tier: "env", path: filepath.Join("env", l.opts.Env, c)})
		}
	}
	return out
}

func tierRank(tier string) int {
	switch tier {
	case "base":
		return 1
	case "env":
		return 2
	default:
		return 9
	}
}

func (l *Loader) loadAnyPath(ctx context.Context, relOrAbs string, tier string) (*Document, error) {
	relOrAbs = strings.TrimSpace(relOrAbs)
	if relOrAbs == "" {
		return nil, ErrNotFound
	}
	if filepath.IsAbs(relOrAbs) {
		absEval, err := filepath.EvalSymlinks(relOrAbs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if !withinRoot(l.rootAbs, absEval) {
			return nil, ErrPathEscape
		}
		doc, err := l.readDoc(ctx, absEval, tier)
		if err != nil {
			return nil, err
		}
		doc.Path = relSlash(l.rootAbs, absEval)
		return &doc, nil
	}
	abs, rel, err := l.safeJoin(relOrAbs)
	if err != nil {
		return nil, err
	}
	doc, err := l.readDoc(ctx, abs, tier)
	if err != nil {
		return nil, err
	}
	doc.Path = rel
	return &doc, nil
}

func (l *Loader) safeJoin(relPath string) (abs string, rel string, err error) {
	relPath = strings.TrimSpace(relPath)
	if relPath == "" {
		return "", "", ErrNotFound
	}
	relClean := filepath.Clean(relPath)
	if filepath.IsAbs(relClean) {
		return "", "", ErrPathEscape
	}
	if relClean == ".." || strings.HasPrefix(relClean, ".."+string(os.PathSeparator)) {
		return "", "", ErrPathEscape
	}
	abs = filepath.Join(l.rootAbs, relClean)
	absEval, e := filepath.EvalSymlinks(abs)
	if e != nil {
		if errors.Is(e, fs.ErrNotExist) {
			return "", "", ErrNotFound
		}
		return "", "", e
	}
	if !withinRoot(l.rootAbs, absEval) {
		return "", "", ErrPathEscape
	}
	rel = relSlash(l.rootAbs, absEval)
	return absEval, rel, nil
}

func withinRoot(rootAbs, targetAbs string) bool {
	root := strings.ToLower(filepath.Clean(rootAbs))
	tgt := strings.ToLower(filepath.Clean(targetAbs))
	if tgt == root {
		return true
	}
	sep := strings.ToLower(string(os.PathSeparator))
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(tgt, root)
}

func relSlash(rootAbs, abs string) string {
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		rel = abs
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	return strings.TrimPrefix(rel, "./")
}

func (l *Loader) readDoc(ctx context.Context, absPath string, tier string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	fi, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if fi.Size() > l.opts.MaxFileBytes {
		return Document{}, ErrFileTooLarge
	}

	f, err := os.Open(absPath)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	lr := &io.LimitedReader{R: f, N: l.opts.MaxFileBytes + 1}
	raw := make([]byte, 0, minInt64(l.opts.MaxFileBytes, 64*1024))
	buf := make([]byte, 32*1024)

	for {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		n, rerr := lr.Read(buf)
		if n > 0 {
			raw = append(raw, buf[:n]...)
			if int64(len(raw)) > l.opts.MaxFileBytes {
				return Document{}, ErrFileTooLarge
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return Document{}, rerr
		}
	}

	sum := sha256.Sum256(raw)
	sha := hex.EncodeToString(sum[:])

	ext := strings.ToLower(filepath.Ext(absPath))
	var obj map[string]any
	switch ext {
	case ".json":
		if err := decodeStrictJSON(raw, &obj); err != nil {
			return Document{}, err
		}
	case ".yaml", ".yml":
		decoded, err := decodeYAML(bytesTrimBOM(raw))
		if err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		obj = decoded
	default:
		return Document{}, ErrUnsupportedExt
	}

	return Document{
		Tier:     tier,
		LoadedAt: time.Now().UTC(),
		SHA256:   sha,
		Data:     obj,
	}, nil
}

func decodeStrictJSON(b []byte, out *map[string]any) error {
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var extra any
	if err := dec.Decode(&extra); err == nil || err != io.EOF {
		return fmt.Errorf("%w: trailing tokens", ErrInvalidJSON)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ErrNotObject
	}
	*out = m
	return nil
}

// decodeYAML parses b as YAML and normalizes it into the same
// map[string]any/[]any/json.Number leaf shape decodeStrictJSON produces, so
// merge.go and canonicaljson never need to know which file format a given
// tier was written in.
func decodeYAML(b []byte) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	normalized, err := yamlToJSONValue(v)
	if err != nil {
		return nil, err
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return m, nil
}

// yamlToJSONValue recursively converts a yaml.v3-decoded value into the
// plain map[string]any/[]any/string/bool/json.Number tree the rest of the
// package works with. yaml.v3 already decodes mappings as map[string]any
// and scalars as string/bool/int/float64, unlike yaml.v2's
// map[interface{}]interface{}; this only needs to re-key any non-string
// map key (YAML permits non-string keys, JSON does not) and fold numeric
// scalars into json.Number for parity with decodeStrictJSON's UseNumber
// behavior.
func yamlToJSONValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			converted, err := yamlToJSONValue(val)
			if err != nil {
				return nil, err
			}
			out[k] = converted
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string map key %v", ErrInvalidJSON, k)
			}
			converted, err := yamlToJSONValue(val)
			if err != nil {
				return nil, err
			}
			out[ks] = converted
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			converted, err := yamlToJSONValue(val)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case int:
		return json.Number(fmt.Sprintf("%d", t)), nil
	case int64:
		return json.Number(fmt.Sprintf("%d", t)), nil
	case uint64:
		return json.Number(fmt.Sprintf("%d", t)), nil
	case float64:
		return json.Number(strconv.FormatFloat(t, 'g', -1, 64)), nil
	default:
		return v, nil
	}
}

func bytesTrimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func deepMergeDeterministic(dst, src map[string]any, maxDepth int) map[string]any {
	return deepMergeDeterministicDepth(dst, src, 0, maxDepth)
}

func deepMergeDeterministicDepth(dst, src map[string]any, depth int, maxDepth int) map[string]any {
	if maxDepth > 0 && depth > maxDepth {
		return src
	}
	if dst == nil {
		dst = map[string]any{}
	}
	if src == nil {
		return dst
	}
	out := make(map[string]any, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sv := src[k]
		if dv, ok := out[k]; ok {
			dm, dok := dv.(map[string]any)
			sm, sok := sv.(map[string]any)
			if dok && sok {
				out[k] = deepMergeDeterministicDepth(dm, sm, depth+1, maxDepth)
				continue
			}
		}
		out[k] = sv
	}
	return out
}

func (l *Loader) envOverrides() (map[string]any, error) {
	prefix := l.opts.EnvPrefix
	if prefix == "" {
		return nil, nil
	}
	del := l.opts.PathDelimiter
	if del == "" {
		del = "__"
	}

	out := map[string]any{}
	matched := 0

	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		k := parts[0]
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		matched++
		if matched > l.opts.MaxEnvVars {
			return nil, fmt.Errorf("%w: too many env vars for prefix %q", ErrEnvOverride, prefix)
		}

		rest := strings.TrimSpace(strings.TrimPrefix(k, prefix))
		if rest == "" {
			l.warn("env.skip.empty_key", k)
			continue
		}
		rawSegs := strings.Split(rest, del)
		segs := make([]string, 0, len(rawSegs))
		bad := false
		for _, s := range rawSegs {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				l.warn("env.skip.empty_segment", k)
				continue
			}
			if !l.reSeg.MatchString(s) {
				l.warn("env.skip.invalid_segment", fmt.Sprintf("%s segment=%q", k, s))
				bad = true
				break
			}
			segs = append(segs, s)
		}
		if bad || len(segs) == 0 {
			continue
		}
		if len(segs) > l.opts.MaxDepth {
			l.warn("env.skip.too_deep", k)
			continue
		}

		val := parseEnvValue(parts[1])
		if err := setPath(out, segs, val, l.opts.MaxDepth); err != nil {
			l.warn("env.skip.setpath_error", fmt.Sprintf("%s err=%v", k, err))
			continue
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseEnvValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err == nil && !dec.More() {
		return v
	}
	return s
}

func setPath(root map[string]any, segs []string, val any, maxDepth int) error {
	if maxDepth > 0 && len(segs) > maxDepth {
		return ErrDepthExceeded
	}
	cur := root
	for i := 0; i < len(segs); i++ {
		k := segs[i]
		if i == len(segs)-1 {
			cur[k] = val
			return nil
		}
		nxt, ok := cur[k]
		if ok {
			if m, ok := nxt.(map[string]any); ok {
				cur = m
				continue
			}
		}
		m := map[string]any{}
		cur[k] = m
		cur = m
	}
	return nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
