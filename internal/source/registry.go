package source

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/dataset"
	"github.com/markhazleton/MuseumSpark-sub000/internal/fetcher"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

// registryFields maps workbook columns to schema fields. The registry is an
// official directory export, so everything it asserts lands at
// structured-site trust.
var registryFields = map[string]string{
	"address":      "address",
	"city":         "city",
	"state":        "state",
	"zip code":     "postal_code",
	"phone":        "phone",
	"website":      "website",
	"museum type":  "museum_type",
	"founded year": "founded_year",
}

// RegistrySource matches museums against a national registry workbook.
type RegistrySource struct {
	path   string
	url    string
	remote fetcher.Fetcher

	mu      sync.Mutex
	loaded  bool
	sig     string
	sigDone bool
	byIndex map[string]map[string]string

	readWorkbook func(path string, opts fetcher.XLSXOptions) ([]map[string]string, error)
}

// NewRegistrySource builds a source over a registry workbook on disk.
func NewRegistrySource(path string) *RegistrySource {
	return &RegistrySource{
		path:         path,
		readWorkbook: fetcher.ReadWorkbook,
	}
}

// NewRemoteRegistrySource downloads the registry workbook from an HTTP or
// FTP drop into cachePath before reading it. HTTP upstreams expose change
// detection through ETags; FTP drops have none, so prior results stand until
// --force.
func NewRemoteRegistrySource(url, cachePath string, remote fetcher.Fetcher) *RegistrySource {
	return &RegistrySource{
		path:         cachePath,
		url:          url,
		remote:       remote,
		readWorkbook: fetcher.ReadWorkbook,
	}
}

func (s *RegistrySource) Phase() string { return "registry" }

// UpstreamSignature watermarks the workbook: a HEAD ETag for remote HTTP
// drops, the file itself for local ones. Every museum in a run shares it.
func (s *RegistrySource) UpstreamSignature(ctx context.Context, m model.Museum) (string, error) {
	if s.url == "" {
		return dataset.FileSignature(s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sigDone {
		return s.sig, nil
	}
	if cf, ok := s.remote.(fetcher.ConditionalFetcher); ok {
		etag, err := cf.HeadETag(ctx, s.url)
		if err != nil {
			return "", eris.Wrap(err, "registry: head workbook")
		}
		if etag != "" {
			s.sig = "etag:" + etag
		}
	}
	s.sigDone = true
	return s.sig, nil
}

func (s *RegistrySource) Fetch(ctx context.Context, m model.Museum) (*Result, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	rec, ok := s.byIndex[matchKey(m.Name, m.StringField("state"))]
	if !ok {
		return &Result{Outcome: OutcomeNotFound}, nil
	}

	now := time.Now().UTC()
	var candidates []model.CandidateUpdate
	for col, field := range registryFields {
		val := strings.TrimSpace(rec[col])
		if val == "" {
			continue
		}
		candidates = append(candidates, model.CandidateUpdate{
			Field:       field,
			Value:       val,
			Origin:      "registry",
			Trust:       trust.StructuredSite,
			Confidence:  5,
			RetrievedAt: now,
		})
	}

	res := &Result{Outcome: OutcomeFound, Candidates: candidates}
	if canonical := strings.TrimSpace(rec["museum name"]); canonical != "" && canonical != m.Name {
		res.NameCorrection = canonical
	}

	if payload, err := json.Marshal(rec); err == nil {
		res.Payload = payload
	}
	if s.url == "" {
		if sig, err := dataset.FileSignature(s.path); err == nil {
			res.Signature = sig
		}
	}
	return res, nil
}

// load downloads the workbook if it is remote, then reads and indexes it
// once. Rows without a name and state cannot be matched and are dropped.
func (s *RegistrySource) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	if s.url != "" {
		written, err := s.remote.DownloadToFile(ctx, s.url, s.path)
		if err != nil {
			return eris.Wrap(err, "registry: download workbook")
		}
		zap.L().Info("registry workbook downloaded",
			zap.String("url", s.url), zap.Int64("bytes", written))
	}

	records, err := s.readWorkbook(s.path, fetcher.XLSXOptions{})
	if err != nil {
		return eris.Wrap(err, "registry: read workbook")
	}

	s.byIndex = make(map[string]map[string]string, len(records))
	dropped := 0
	for _, rec := range records {
		name := strings.TrimSpace(rec["museum name"])
		state := strings.TrimSpace(rec["state"])
		if name == "" || state == "" {
			dropped++
			continue
		}
		s.byIndex[matchKey(name, state)] = rec
	}
	s.loaded = true

	zap.L().Info("registry workbook loaded",
		zap.String("path", s.path),
		zap.Int("rows", len(s.byIndex)),
		zap.Int("dropped", dropped))
	return nil
}

// matchKey normalizes a (name, state) pair for case- and spacing-insensitive
// lookup.
func matchKey(name, state string) string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(name) + "|" + norm(state)
}
