package metrics

import (
	"context"
	"time"
)

// Collector は定期的にコネクションプールの統計を取得してゲージへ反映します。
type Collector struct {
	recorder *Recorder
	source   func() PoolStats
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector は Collector を生成します。
func NewCollector(recorder *Recorder, source func() PoolStats, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		recorder: recorder,
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start は収集ループを開始します。
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.recorder.UpdatePoolStats(c.source())
	go c.collect(ctx)
}

// Stop は収集ループを停止し、終了を待ちます。
func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Collector) collect(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.recorder.UpdatePoolStats(c.source())
		}
	}
}
