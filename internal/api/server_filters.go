package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tipshield/internal/cosmetic"
)

func registerFilterHandlers(api huma.API, svc Service) {
	type filterListOutput struct {
		Body struct {
			Filters cosmetic.FilterList `json:"filters"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-cosmetic-filters", Method: http.MethodGet, Path: "/api/v1/cosmetic-filters", Summary: "List stored cosmetic filters for every origin", Tags: []string{"Cosmetic Filters"}},
		func(ctx context.Context, input *struct{}) (*filterListOutput, error) {
			list, err := svc.ListFilters(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &filterListOutput{}
			out.Body.Filters = list
			return out, nil
		})

	type originFiltersOutput struct {
		Body struct {
			Origin  string                  `json:"origin"`
			Filters []cosmetic.FilterRecord `json:"filters"`
		}
	}
	newOriginFilters := func(origin string, recs []cosmetic.FilterRecord) *originFiltersOutput {
		out := &originFiltersOutput{}
		out.Body.Origin = origin
		out.Body.Filters = recs
		if out.Body.Filters == nil {
			out.Body.Filters = []cosmetic.FilterRecord{}
		}
		return out
	}

	huma.Register(api, huma.Operation{OperationID: "get-cosmetic-filters", Method: http.MethodGet, Path: "/api/v1/cosmetic-filters/{origin}", Summary: "List cosmetic filters for one origin", Tags: []string{"Cosmetic Filters"}},
		func(ctx context.Context, input *originInput) (*originFiltersOutput, error) {
			recs, err := svc.FiltersFor(ctx, input.Origin)
			if err != nil {
				return nil, mapErr(err)
			}
			return newOriginFilters(input.Origin, recs), nil
		})

	type addFilterInput struct {
		Origin string `path:"origin" doc:"Origin hostname the filter applies to"`
		Body   struct {
			Selector string `json:"selector" doc:"CSS selector to hide" minLength:"1"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "add-cosmetic-filter", Method: http.MethodPost, Path: "/api/v1/cosmetic-filters/{origin}", Summary: "Append a cosmetic filter to an origin", Tags: []string{"Cosmetic Filters"}},
		func(ctx context.Context, input *addFilterInput) (*originFiltersOutput, error) {
			recs, err := svc.AddFilter(ctx, input.Origin, input.Body.Selector)
			if err != nil {
				return nil, mapErr(err)
			}
			return newOriginFilters(input.Origin, recs), nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-cosmetic-filters", Method: http.MethodDelete, Path: "/api/v1/cosmetic-filters/{origin}", Summary: "Remove every cosmetic filter of an origin", Tags: []string{"Cosmetic Filters"}},
		func(ctx context.Context, input *originInput) (*statusOutput, error) {
			if err := svc.RemoveFilter(ctx, input.Origin); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("removed"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-cosmetic-filters", Method: http.MethodDelete, Path: "/api/v1/cosmetic-filters", Summary: "Clear the cosmetic filter store", Tags: []string{"Cosmetic Filters"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			if err := svc.ClearFilters(ctx); err != nil {
				return nil, mapErr(err)
			}
			return newStatus("cleared"), nil
		})
}
