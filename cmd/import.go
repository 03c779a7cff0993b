package main

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/dataset"
	"github.com/markhazleton/MuseumSpark-sub000/internal/fetcher"
	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
	"github.com/markhazleton/MuseumSpark-sub000/pkg/geocode"
)

var (
	importFilePath string
	importGeocode  bool
)

// importedColumns maps workbook columns to schema fields seeded at import.
var importedColumns = map[string]string{
	"address":     "address",
	"city":        "city",
	"state":       "state",
	"zip code":    "postal_code",
	"phone":       "phone",
	"website":     "website",
	"museum type": "museum_type",
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Seed or refresh dataset partitions from a spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := fetcher.ReadWorkbook(importFilePath, fetcher.XLSXOptions{})
		if err != nil {
			return eris.Wrap(err, "import: read workbook")
		}

		now := time.Now().UTC()
		byPartition := make(map[string][]model.Museum)
		skipped := 0
		for _, rec := range records {
			name := strings.TrimSpace(rec["museum name"])
			state := strings.TrimSpace(rec["state"])
			if name == "" || state == "" {
				skipped++
				continue
			}

			partition := strings.ToLower(state)
			m := model.Museum{
				Key:       slug(state) + "-" + slugOrNone(rec["city"]) + "-" + slug(name),
				Name:      name,
				Partition: partition,
				UpdatedAt: now,
			}
			for col, field := range importedColumns {
				val := strings.TrimSpace(rec[col])
				if val == "" {
					continue
				}
				m.SetField(field, model.FieldEnvelope{
					Value:       val,
					Origin:      "import",
					Trust:       trust.StructuredSite,
					Confidence:  5,
					RetrievedAt: now,
				})
			}
			byPartition[partition] = append(byPartition[partition], m)
		}
		if len(byPartition) == 0 {
			return eris.New("import: no usable rows in workbook")
		}

		if importGeocode {
			if err := geocodeImported(cmd.Context(), byPartition, now); err != nil {
				return err
			}
		}

		if err := os.MkdirAll(cfg.Dataset.Dir, 0o755); err != nil {
			return eris.Wrap(err, "import: create dataset dir")
		}
		repo := dataset.NewRepository(cfg.Dataset.Dir)

		imported := 0
		for partition, museums := range byPartition {
			existing, err := repo.Load(partition)
			if err != nil && !os.IsNotExist(eris.Cause(err)) {
				return err
			}
			for _, m := range museums {
				existing = dataset.Upsert(existing, m)
			}
			if err := repo.Save(partition, existing); err != nil {
				return err
			}
			imported += len(museums)
		}

		zap.L().Info("import complete",
			zap.Int("imported", imported),
			zap.Int("skipped", skipped),
			zap.Int("partitions", len(byPartition)),
			zap.String("file", importFilePath))
		return nil
	},
}

// geocodeImported resolves coordinates for the imported rows in one Census
// batch call before the partitions are written.
func geocodeImported(ctx context.Context, byPartition map[string][]model.Museum, now time.Time) error {
	byKey := make(map[string]*model.Museum)
	for partition := range byPartition {
		ms := byPartition[partition]
		for i := range ms {
			byKey[ms[i].Key] = &ms[i]
		}
	}

	inputs := collectGeocodeInputs(byKey)
	if len(inputs) == 0 {
		zap.L().Info("no imported rows need geocoding")
		return nil
	}

	client := geocode.NewClient(geocode.WithRateLimit(float64(cfg.Geocode.RateLimit)))
	results, err := client.BatchGeocode(ctx, inputs)
	if err != nil {
		return eris.Wrap(err, "import: batch geocode")
	}

	matched := applyGeocodeResults(byKey, inputs, results, now)
	zap.L().Info("imported addresses geocoded",
		zap.Int("queried", len(inputs)), zap.Int("matched", matched))
	return nil
}

// collectGeocodeInputs gathers batch inputs for museums with a complete
// street address and no coordinates yet, in key order.
func collectGeocodeInputs(byKey map[string]*model.Museum) []geocode.AddressInput {
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var inputs []geocode.AddressInput
	for _, k := range keys {
		m := byKey[k]
		if _, ok := m.Field("latitude"); ok {
			continue
		}
		street := m.StringField("address")
		city := m.StringField("city")
		state := m.StringField("state")
		if street == "" || city == "" || state == "" {
			continue
		}
		inputs = append(inputs, geocode.AddressInput{
			ID: m.Key, Street: street, City: city, State: state,
			ZipCode: m.StringField("postal_code"),
		})
	}
	return inputs
}

// applyGeocodeResults writes matched batch results back onto the museums.
// Results are positional: results[i] answers inputs[i].
func applyGeocodeResults(byKey map[string]*model.Museum, inputs []geocode.AddressInput, results []geocode.Result, now time.Time) int {
	matched := 0
	for i, res := range results {
		if i >= len(inputs) || !res.Matched {
			continue
		}
		m, ok := byKey[inputs[i].ID]
		if !ok {
			continue
		}
		confidence := 4
		if res.Quality == "rooftop" {
			confidence = 5
		}
		origin := "geocode_" + res.Source
		m.SetField("latitude", model.FieldEnvelope{
			Value: res.Latitude, Origin: origin,
			Trust: trust.KnowledgeBase, Confidence: confidence, RetrievedAt: now,
		})
		m.SetField("longitude", model.FieldEnvelope{
			Value: res.Longitude, Origin: origin,
			Trust: trust.KnowledgeBase, Confidence: confidence, RetrievedAt: now,
		})
		matched++
	}
	return matched
}

// slug normalizes a string into a lowercase key segment.
func slug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func slugOrNone(s string) string {
	if out := slug(s); out != "" {
		return out
	}
	return "x"
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to xlsx workbook (required)")
	importCmd.Flags().BoolVar(&importGeocode, "geocode", false, "batch-geocode imported addresses via the Census API")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
