package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	apierrors "github.com/bijux/atlas/pkg/errors"
	"github.com/bijux/atlas/pkg/model"
)

// handleListDatasets renders the current catalog as a dataset-discovery
// list, short-TTL cacheable since the catalog can change between releases.
func (a *App) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	cat := a.Cache.CurrentCatalog()
	items := make([]map[string]any, 0, len(cat.Entries))
	for _, e := range cat.Entries {
		items = append(items, map[string]any{
			"release":  e.Dataset.Release,
			"species":  e.Dataset.Species,
			"assembly": e.Dataset.Assembly,
		})
	}
	writeEnvelope(w, r, Envelope{
		Data: ListData{Items: items, Stats: map[string]any{"count": len(items)}},
	}, CatalogDiscovery)
}

// handleGetDataset reports one dataset's manifest summary, or DatasetNotFound
// if it isn't in the catalog.
func (a *App) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	dataset, ok := a.datasetFromPath(w, r)
	if !ok {
		return
	}
	manifest, err := a.Cache.FetchManifestSummary(r.Context(), dataset)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.DatasetNotFound, "dataset not found", requestID(r), map[string]any{
			"dataset": dataset.CanonicalString(),
		}))
		return
	}
	writeEnvelope(w, r, Envelope{
		Dataset: &dataset,
		Data: map[string]any{
			"manifest": manifest,
		},
	}, ImmutableDataset)
}

// handleDeprecatedDatasetAlias redirects the pre-v1 nested dataset path to
// its canonical /v1/datasets/{release}/{species}/{assembly} form, marking
// the response as deprecated per the external interface contract.
func (a *App) handleDeprecatedDatasetAlias(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dataset, err := model.NewDatasetIDNormalized(vars["release"], vars["species"], vars["assembly"])
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.MissingDatasetDimension, "invalid dataset path", requestID(r), nil))
		return
	}
	canonical := "/v1/datasets/" + dataset.CanonicalString()
	w.Header().Set("Link", "<"+canonical+`>; rel="canonical"`)
	w.Header().Set("Deprecation", "true")
	http.Redirect(w, r, canonical, http.StatusPermanentRedirect)
}

// datasetFromPath resolves {release}/{species}/{assembly} path variables
// into a validated DatasetID, writing a MissingDatasetDimension error and
// returning false on failure.
func (a *App) datasetFromPath(w http.ResponseWriter, r *http.Request) (model.DatasetID, bool) {
	vars := mux.Vars(r)
	dataset, err := model.NewDatasetIDNormalized(vars["release"], vars["species"], vars["assembly"])
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.MissingDatasetDimension, err.Error(), requestID(r), nil))
		return model.DatasetID{}, false
	}
	return dataset, true
}
