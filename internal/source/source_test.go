package source

import (
	"time"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
	"github.com/markhazleton/MuseumSpark-sub000/internal/trust"
)

func testMuseum(key, name string, fields map[string]any) model.Museum {
	m := model.Museum{Key: key, Name: name, Partition: "mo.json"}
	for k, v := range fields {
		m.SetField(k, model.FieldEnvelope{
			Value:       v,
			Origin:      "import",
			Trust:       trust.StructuredSite,
			Confidence:  5,
			RetrievedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return m
}

func candidateByField(candidates []model.CandidateUpdate, field string) (model.CandidateUpdate, bool) {
	for _, c := range candidates {
		if c.Field == field {
			return c, true
		}
	}
	return model.CandidateUpdate{}, false
}
