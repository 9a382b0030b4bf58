package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tipshield/internal/cdpcontrol"
	"github.com/dgnsrekt/tipshield/internal/controller"
)

func registerTabHandlers(api huma.API, svc Service) {
	type listTabsOutput struct {
		Body struct {
			Tabs []cdpcontrol.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List browser tabs matching the tab filter", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type applyInput struct {
		TargetID string `path:"target_id"`
	}
	type applyOutput struct {
		Body controller.ApplyResult
	}
	huma.Register(api, huma.Operation{OperationID: "apply-cosmetic-filters", Method: http.MethodPost, Path: "/api/v1/tabs/{target_id}/cosmetic-filters/apply", Summary: "Inject the stored filters for a tab's hostname", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *applyInput) (*applyOutput, error) {
			res, err := svc.ApplyFilters(ctx, input.TargetID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &applyOutput{Body: res}, nil
		})
}
