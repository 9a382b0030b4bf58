// Package api serves the controller's HTTP surface: filter store and tab
// styling operations, rewards settings, the injector message endpoint and
// the tip event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/tipshield/internal/cdpcontrol"
	"github.com/dgnsrekt/tipshield/internal/controller"
	"github.com/dgnsrekt/tipshield/internal/cosmetic"
	"github.com/dgnsrekt/tipshield/internal/messaging"
	"github.com/dgnsrekt/tipshield/internal/relay"
	"github.com/dgnsrekt/tipshield/internal/rewards"
)

type Service interface {
	ListFilters(ctx context.Context) (cosmetic.FilterList, error)
	FiltersFor(ctx context.Context, origin string) ([]cosmetic.FilterRecord, error)
	AddFilter(ctx context.Context, origin, selector string) ([]cosmetic.FilterRecord, error)
	RemoveFilter(ctx context.Context, origin string) error
	ClearFilters(ctx context.Context) error
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	ApplyFilters(ctx context.Context, targetID string) (controller.ApplyResult, error)
	RewardsSettings(ctx context.Context) (rewards.Settings, error)
	SetRewardsEnabled(ctx context.Context, enabled bool) (rewards.Settings, error)
	SetInlineTip(ctx context.Context, site string, enabled bool) (rewards.Settings, error)
	HandleMessage(ctx context.Context, msg messaging.Message) messaging.Reply
}

type originInput struct {
	Origin string `path:"origin" doc:"Origin hostname the filters apply to, e.g. www.example.com"`
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func newStatus(status string) *statusOutput {
	out := &statusOutput{}
	out.Body.Status = status
	return out
}

// NewServer builds the router. broker may be nil, in which case the tip
// stream route is not mounted.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("TipShield Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", staticHTML("reference", renderReference(referencePage{
		Title:      cfg.Info.Title,
		SpecURL:    "/openapi.json",
		StreamDocs: broker != nil,
	})))
	if broker != nil {
		router.Get("/docs/stream", staticHTML("stream", []byte(streamDocsHTML)))
		router.Get(tipsStreamPath, relay.SSEHandler(broker))
	}

	registerFilterHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerRewardsHandlers(api, svc)
	registerMiscHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
