package chart

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	promModel "github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"
)

// PromSource 基于 Prometheus HTTP API 的时序来源
type PromSource struct {
	api     v1.API
	timeout time.Duration
}

func NewPromSource(address string, timeout time.Duration) (*PromSource, error) {
	client, err := api.NewClient(api.Config{
		Address: address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return &PromSource{api: v1.NewAPI(client), timeout: timeout}, nil
}

func (s *PromSource) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (promModel.Matrix, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	r := v1.Range{
		Start: start,
		End:   end,
		Step:  step,
	}
	result, warnings, err := s.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("failed to query prometheus: %w", err)
	}
	if len(warnings) > 0 {
		log.Warn().Strs("warnings", warnings).Str("query", query).Msg("prometheus warnings")
	}
	matrix, ok := result.(promModel.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}
	return matrix, nil
}
