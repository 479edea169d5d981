package crawler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/metrics"
)

var panicCount atomic.Int64

// PanicCount returns the number of stage panics recovered since start
func PanicCount() int64 {
	return panicCount.Load()
}

// runStage runs one stage with panic recovery, merges its partial and
// records the attempt. A panic becomes an Escalate verdict.
func (c *Crawler) runStage(ctx context.Context, stage Stage, st *crawlState, log *zap.Logger) StageResult {
	start := time.Now()
	res := safeRun(ctx, stage, st, log)
	elapsed := time.Since(start)

	if res.Verdict != Abort && res.Verdict != Skipped {
		Merge(st.product, res.Partial)
	}
	if res.Verdict == Escalate && ctx.Err() != nil {
		res.Verdict = Abort
	}

	st.attempts = append(st.attempts, Attempt{
		Stage:   stage.Name(),
		Verdict: res.Verdict,
		Reason:  res.Reason,
		Elapsed: elapsed,
	})
	metrics.ObserveStage(stage.Name(), res.Verdict.String(), elapsed)

	log.Info(stage.Name()+" stage "+res.Verdict.String(),
		zap.String("stage", stage.Name()),
		zap.String("verdict", res.Verdict.String()),
		zap.String("reason", res.Reason),
		zap.Duration("elapsed", elapsed),
	)
	return res
}

func safeRun(ctx context.Context, stage Stage, st *crawlState, log *zap.Logger) (res StageResult) {
	defer func() {
		if r := recover(); r != nil {
			panicCount.Add(1)
			log.Error("stage panicked",
				zap.String("stage", stage.Name()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = StageResult{Verdict: Escalate, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return stage.Run(ctx, st)
}
