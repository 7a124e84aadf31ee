package supabase

import (
	"context"
	"net/http"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"
)

// ServerFunctions calls Postgres functions through PostgREST. Calls are
// authorized with the service role key so functions can bypass row level
// security where they need to (e.g. creating a profile for a user that just
// signed up and has no row yet).
type ServerFunctions struct {
	client     *Client
	serviceKey string
}

func NewServerFunctions(client *Client, serviceKey string) domain.ServerFunctions {
	return &ServerFunctions{client: client, serviceKey: serviceKey}
}

func (s *ServerFunctions) Call(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}
	err := s.client.do(ctx, http.MethodPost, "/rest/v1/rpc/"+name, s.serviceKey, args, &result)
	if err != nil {
		if appErr, ok := err.(*apperror.AppError); ok && appErr.Kind == apperror.KindNetwork {
			return nil, err
		}
		return nil, apperror.Rpc("server function "+name+" failed: "+err.Error(), err)
	}
	return result, nil
}
