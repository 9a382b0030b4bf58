package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tipshield/internal/messaging"
)

func registerMiscHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: healthPath, Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return newStatus("ok"), nil
		})

	type messageInput struct {
		Body messaging.Message
	}
	type messageOutput struct {
		Body messaging.Reply
	}
	// Rejections travel in the reply body with a 200 status.
	huma.Register(api, huma.Operation{OperationID: "send-message", Method: http.MethodPost, Path: messaging.Path, Summary: "Answer a tip injector message", Tags: []string{"Messages"}},
		func(ctx context.Context, input *messageInput) (*messageOutput, error) {
			return &messageOutput{Body: svc.HandleMessage(ctx, input.Body)}, nil
		})
}
