package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

func writeRegistryWorkbook(t *testing.T) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Registry")
	require.NoError(t, err)

	rows := [][]string{
		{"Museum Name", "Address", "City", "State", "Zip Code", "Phone", "Website", "Museum Type", "Founded Year"},
		{"Saint Louis Art Museum", "1 Fine Arts Dr", "St. Louis", "MO", "63110", "314-721-0072", "https://www.slam.org/", "art", "1879"},
		{"City Museum", "750 N 16th St", "St. Louis", "MO", "63103", "", "", "general", ""},
		{"", "nowhere", "St. Louis", "MO", "", "", "", "", ""},
	}
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}

	path := filepath.Join(t.TempDir(), "registry.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestRegistrySource_Match(t *testing.T) {
	s := NewRegistrySource(writeRegistryWorkbook(t))
	m := testMuseum("mo-stl-artmuseum", "saint louis  ART Museum", map[string]any{"state": "mo"})

	res, err := s.Fetch(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)

	addr, ok := candidateByField(res.Candidates, "address")
	require.True(t, ok)
	assert.Equal(t, "1 Fine Arts Dr", addr.Value)
	assert.Equal(t, trust.StructuredSite, addr.Trust)
	assert.Equal(t, "registry", addr.Origin)

	year, ok := candidateByField(res.Candidates, "founded_year")
	require.True(t, ok)
	assert.Equal(t, "1879", year.Value)

	// Casing differs from the registry's canonical name.
	assert.Equal(t, "Saint Louis Art Museum", res.NameCorrection)
	assert.True(t, strings.HasPrefix(res.Signature, "mtime:"))
	assert.NotEmpty(t, res.Payload)
}

func TestRegistrySource_EmptyColumnsOmitted(t *testing.T) {
	s := NewRegistrySource(writeRegistryWorkbook(t))
	m := testMuseum("mo-stl-citymuseum", "City Museum", map[string]any{"state": "MO"})

	res, err := s.Fetch(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, res.Outcome)

	_, ok := candidateByField(res.Candidates, "phone")
	assert.False(t, ok)
	_, ok = candidateByField(res.Candidates, "founded_year")
	assert.False(t, ok)
	assert.Empty(t, res.NameCorrection)
}

func TestRegistrySource_NotFound(t *testing.T) {
	s := NewRegistrySource(writeRegistryWorkbook(t))
	m := testMuseum("ny-nyc-moma", "Museum of Modern Art", map[string]any{"state": "NY"})

	res, err := s.Fetch(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Empty(t, res.Candidates)
}

func TestRegistrySource_UpstreamSignature(t *testing.T) {
	path := writeRegistryWorkbook(t)
	s := NewRegistrySource(path)

	sig, err := s.UpstreamSignature(context.Background(), testMuseum("x", "X", nil))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "mtime:"))

	missing := NewRegistrySource(filepath.Join(t.TempDir(), "gone.xlsx"))
	sig, err = missing.UpstreamSignature(context.Background(), testMuseum("x", "X", nil))
	require.NoError(t, err)
	assert.Empty(t, sig)
}

// fakeRemoteFetcher stands in for an HTTP drop: DownloadToFile copies a
// prepared workbook into place and HeadETag serves a fixed ETag.
type fakeRemoteFetcher struct {
	workbook  string
	etag      string
	downloads int
	heads     int
}

func (f *fakeRemoteFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	return os.Open(f.workbook)
}

func (f *fakeRemoteFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	f.downloads++
	data, err := os.ReadFile(f.workbook)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (f *fakeRemoteFetcher) HeadETag(ctx context.Context, url string) (string, error) {
	f.heads++
	return f.etag, nil
}

func (f *fakeRemoteFetcher) DownloadIfChanged(ctx context.Context, url, etag string) (io.ReadCloser, string, bool, error) {
	if etag == f.etag {
		return nil, f.etag, false, nil
	}
	rc, err := os.Open(f.workbook)
	return rc, f.etag, true, err
}

func TestRegistrySource_RemoteDownloadsWorkbookOnce(t *testing.T) {
	remote := &fakeRemoteFetcher{workbook: writeRegistryWorkbook(t), etag: `"v7"`}
	cache := filepath.Join(t.TempDir(), "registry.xlsx")
	s := NewRemoteRegistrySource("https://registry.example.test/museums.xlsx", cache, remote)

	res, err := s.Fetch(context.Background(), testMuseum("mo-stl-artmuseum", "Saint Louis Art Museum", map[string]any{"state": "MO"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Empty(t, res.Signature)

	_, err = s.Fetch(context.Background(), testMuseum("mo-stl-citymuseum", "City Museum", map[string]any{"state": "MO"}))
	require.NoError(t, err)
	assert.Equal(t, 1, remote.downloads)
}

func TestRegistrySource_RemoteSignatureIsHeadETag(t *testing.T) {
	remote := &fakeRemoteFetcher{workbook: writeRegistryWorkbook(t), etag: `"v7"`}
	s := NewRemoteRegistrySource("https://registry.example.test/museums.xlsx", filepath.Join(t.TempDir(), "registry.xlsx"), remote)

	m := testMuseum("mo-stl-artmuseum", "Saint Louis Art Museum", map[string]any{"state": "MO"})
	sig, err := s.UpstreamSignature(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, `etag:"v7"`, sig)

	// The HEAD result is shared across every museum in the run.
	_, err = s.UpstreamSignature(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.heads)
	assert.Zero(t, remote.downloads)
}

func TestRegistrySource_RemoteFTPHasNoSignature(t *testing.T) {
	remote := &fakePlainFetcher{workbook: writeRegistryWorkbook(t)}
	s := NewRemoteRegistrySource("ftp://mirror.example.test/museums.xlsx", filepath.Join(t.TempDir(), "registry.xlsx"), remote)

	sig, err := s.UpstreamSignature(context.Background(), testMuseum("k", "K", nil))
	require.NoError(t, err)
	assert.Empty(t, sig)
}

// fakePlainFetcher offers no change detection, the way the FTP fetcher
// presents itself.
type fakePlainFetcher struct {
	workbook string
}

func (f *fakePlainFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	return os.Open(f.workbook)
}

func (f *fakePlainFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	data, err := os.ReadFile(f.workbook)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}
