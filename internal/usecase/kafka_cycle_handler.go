package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	pkgkafka "Conductor/pkg/kafka"
	applogger "Conductor/pkg/logger"
	"Conductor/pkg/metrics"
)

// CycleRunner is the part of CycleService the trigger handler needs.
type CycleRunner interface {
	RunCycle(ctx context.Context, req CycleRequest) (models.PortfolioIntent, error)
}

// KafkaCycleHandler runs a cycle for every bar-close event on its topic.
type KafkaCycleHandler struct {
	topic     string
	timeframe domrepo.Timeframe
	runner    CycleRunner
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewKafkaCycleHandler(topic string, timeframe domrepo.Timeframe, runner CycleRunner, m domrepo.Metrics, l *applogger.Logger) *KafkaCycleHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaCycleHandler{topic: topic, timeframe: timeframe, runner: runner, metrics: m, l: l}
}

func (h *KafkaCycleHandler) Topic() string { return h.topic }

// incoming message schema: {"as_of": RFC3339, "timeframe": "1Day", "replay": false}
func (h *KafkaCycleHandler) Handle(ctx context.Context, b []byte) error {
	var trig models.CycleTrigger
	if err := json.Unmarshal(b, &trig); err != nil {
		h.metrics.RecordError("trigger_unmarshal")
		return fmt.Errorf("decode cycle trigger: %w", err)
	}
	if trig.Timeframe != "" && domrepo.Timeframe(trig.Timeframe) != h.timeframe {
		h.l.Debug("trigger ignored",
			applogger.String("timeframe", trig.Timeframe),
			applogger.String("primary_timeframe", string(h.timeframe)),
		)
		return nil
	}
	var req CycleRequest
	switch {
	case trig.Replay:
		req.AsOf = trig.AsOf
	case trig.AsOf != nil:
		// live: bar-close time only feeds the lag metric, eval_ts is resolved from the store
		h.metrics.RecordLatency("trigger_lag", time.Since(*trig.AsOf).Seconds())
	}

	intent, err := h.runner.RunCycle(ctx, req)
	if errors.Is(err, ErrPersistIntent) {
		// the cycle ran; redelivery would only build a second intent
		h.metrics.RecordError("trigger_persist")
		h.l.Error("triggered cycle not persisted",
			applogger.String("intent_id", intent.IntentID),
			applogger.Error(err),
		)
		return nil
	}
	if err != nil {
		h.metrics.RecordError("trigger_cycle")
		return err
	}
	h.l.Info("triggered cycle complete",
		applogger.String("intent_id", intent.IntentID),
		applogger.Bool("trade_allowed", intent.TradeAllowed),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCycleHandler)(nil)
