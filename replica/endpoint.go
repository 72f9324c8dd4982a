package replica

import (
	"context"

	"github.com/hazyhaar/treemirror/record"
)

type sessionsRequest struct{}

type sessionRequest struct {
	ID string `json:"session"`
}

type patchesRequest struct {
	ID    string `json:"session"`
	After uint64 `json:"after,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type sessionsResponse struct {
	Sessions []*Session `json:"sessions"`
}

type markdownResponse struct {
	Session  string `json:"session"`
	Markdown string `json:"markdown"`
}

type patchesResponse struct {
	Session string          `json:"session"`
	Patches []*record.Patch `json:"patches"`
}

func sessionsEndpoint(r *Replica) Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		list, err := r.Sessions(ctx)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []*Session{}
		}
		return &sessionsResponse{Sessions: list}, nil
	}
}

func stateEndpoint(r *Replica) Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		return r.State(ctx, req.(*sessionRequest).ID)
	}
}

func markdownEndpoint(r *Replica) Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		id := req.(*sessionRequest).ID
		md, err := r.Markdown(ctx, id)
		if err != nil {
			return nil, err
		}
		return &markdownResponse{Session: id, Markdown: md}, nil
	}
}

func patchesEndpoint(r *Replica) Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		pr := req.(*patchesRequest)
		list, err := r.Patches(ctx, pr.ID, pr.After, pr.Limit)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []*record.Patch{}
		}
		return &patchesResponse{Session: pr.ID, Patches: list}, nil
	}
}
