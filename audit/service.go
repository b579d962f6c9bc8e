// api/audit/service.go
package audit

import (
	"context"
	"time"

	"github.com/warden-net/warden/api/model"
)

type Service interface {
	Log(ctx context.Context, entry Entry) error
	LogDecision(ctx context.Context, decision model.Decision) error
	QueryDecisions(ctx context.Context, mac string, from, to time.Time, limit int) ([]Entry, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Log(ctx context.Context, entry Entry) error {
	return s.repo.Log(ctx, entry)
}

func (s *service) LogDecision(ctx context.Context, decision model.Decision) error {
	ctxCopy := decision.Context
	return s.repo.Log(ctx, Entry{
		Timestamp: decision.DecidedAt,
		Action:    "EVALUATE",
		DeviceMAC: decision.Context.SourceMAC,
		PolicyID:  decision.PolicyID,
		Decision:  string(decision.Action),
		Context:   &ctxCopy,
	})
}

func (s *service) QueryDecisions(ctx context.Context, mac string, from, to time.Time, limit int) ([]Entry, error) {
	return s.repo.Query(ctx, mac, from, to, limit)
}
