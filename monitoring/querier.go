package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ErrQueryFailed wraps telemetry backend failures. Callers degrade to a
// disabled payload instead of surfacing these to end users.
var ErrQueryFailed = errors.New("monitoring: query failed")

// Querier evaluates one instant query and returns a single scalar.
// Vector results are summed; an empty result is zero.
type Querier interface {
	Query(ctx context.Context, expr string, at time.Time) (float64, error)
}

// PromQuerier runs instant queries against a Prometheus HTTP API.
type PromQuerier struct {
	api     promv1.API
	timeout time.Duration
}

// NewPromQuerier builds a querier for the Prometheus server at baseURL.
func NewPromQuerier(baseURL string, timeout time.Duration) (*PromQuerier, error) {
	client, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PromQuerier{api: promv1.NewAPI(client), timeout: timeout}, nil
}

// Query evaluates expr at the given instant.
func (q *PromQuerier) Query(ctx context.Context, expr string, at time.Time) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	value, _, err := q.api.Query(ctx, expr, at)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	switch v := value.(type) {
	case *model.Scalar:
		return float64(v.Value), nil
	case model.Vector:
		var sum float64
		for _, sample := range v {
			sum += float64(sample.Value)
		}
		return sum, nil
	default:
		return 0, fmt.Errorf("%w: unexpected result type %s", ErrQueryFailed, value.Type())
	}
}
