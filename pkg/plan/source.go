package plan

import (
	"context"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// Source defines how the plan catalog is loaded at startup.
type Source interface {
	Load(ctx context.Context) (Catalog, error)
}

// StaticSource serves a fixed catalog, useful for tests and simple deployments.
type StaticSource struct {
	catalog Catalog
}

// NewStaticSource creates a Source backed by an in-memory catalog.
func NewStaticSource(catalog Catalog) *StaticSource {
	return &StaticSource{catalog: catalog}
}

func (s *StaticSource) Load(_ context.Context) (Catalog, error) {
	if err := s.catalog.Validate(); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return s.catalog, nil
}

// FileSource loads the catalog from a YAML file. The file maps plan types to
// plan definitions:
//
//	free:
//	  type: free
//	  name: Free
//	  quotas: {ideas: 3, validations: 3, content: 5}
//	pro_monthly:
//	  type: pro_monthly
//	  name: Pro Monthly
//	  price: {amount: 2900, currency: USD}
//	  provider_price_id: pri_monthly
//	  quotas: {ideas: -1, validations: -1, content: -1}
type FileSource struct {
	path string
}

// NewFileSource creates a Source reading the catalog from the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(_ context.Context) (Catalog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Join(ErrCatalogFileMissing, err)
		}
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	return catalog, nil
}

// DefaultCatalog returns the built-in catalog used when no file is configured.
// Prices are in USD cents; paid tiers have unlimited quotas.
func DefaultCatalog() Catalog {
	return Catalog{
		Free: {
			Type: Free,
			Name: "Free",
			Quotas: map[Quota]int64{
				QuotaIdeas:       3,
				QuotaValidations: 3,
				QuotaContent:     5,
			},
		},
		ProMonthly: {
			Type:            ProMonthly,
			Name:            "Pro Monthly",
			Price:           Money{Amount: 2900, Currency: "USD"},
			ProviderPriceID: "pri_pro_monthly",
			Quotas: map[Quota]int64{
				QuotaIdeas:       Unlimited,
				QuotaValidations: Unlimited,
				QuotaContent:     Unlimited,
			},
		},
		ProYearly: {
			Type:            ProYearly,
			Name:            "Pro Yearly",
			Price:           Money{Amount: 28908, Currency: "USD"},
			ProviderPriceID: "pri_pro_yearly",
			Quotas: map[Quota]int64{
				QuotaIdeas:       Unlimited,
				QuotaValidations: Unlimited,
				QuotaContent:     Unlimited,
			},
		},
	}
}
