package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tipshield/internal/rewards"
)

func registerRewardsHandlers(api huma.API, svc Service) {
	type settingsOutput struct {
		Body rewards.Settings
	}

	huma.Register(api, huma.Operation{OperationID: "get-rewards", Method: http.MethodGet, Path: "/api/v1/rewards", Summary: "Get rewards settings", Tags: []string{"Rewards"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			st, err := svc.RewardsSettings(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: st}, nil
		})

	type setRewardsInput struct {
		Body struct {
			Enabled bool `json:"enabled" doc:"Global rewards switch"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-rewards", Method: http.MethodPut, Path: "/api/v1/rewards", Summary: "Enable or disable rewards", Tags: []string{"Rewards"}},
		func(ctx context.Context, input *setRewardsInput) (*settingsOutput, error) {
			st, err := svc.SetRewardsEnabled(ctx, input.Body.Enabled)
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: st}, nil
		})

	type setInlineTipInput struct {
		Site string `path:"site" doc:"Site key, e.g. soundcloud"`
		Body struct {
			Enabled bool `json:"enabled" doc:"Inline tip switch for the site"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-inline-tip", Method: http.MethodPut, Path: "/api/v1/rewards/inline-tip/{site}", Summary: "Enable or disable inline tipping for a site", Tags: []string{"Rewards"}},
		func(ctx context.Context, input *setInlineTipInput) (*settingsOutput, error) {
			st, err := svc.SetInlineTip(ctx, input.Site, input.Body.Enabled)
			if err != nil {
				return nil, mapErr(err)
			}
			return &settingsOutput{Body: st}, nil
		})
}
