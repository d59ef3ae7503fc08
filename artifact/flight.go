package artifact

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/patloader/types"
)

// flight 一次被多个调用方共享的流水线运行。
//
// 流水线跑在与调用方取消解耦的 ctx 上；只有最后一个等待方离开时才取消它，
// 因此某个调用方取消不会让其他仍在等待的调用方失败。
type flight struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int // flightMu 保护
	stage   atomic.Value
}

func (f *flight) setStage(stage Stage) {
	f.stage.Store(stage)
}

func (f *flight) currentStage() Stage {
	if s, ok := f.stage.Load().(Stage); ok {
		return s
	}
	return StageInit
}

// joinFlight 加入 key 上进行中的运行，没有则新建
func (l *Loader) joinFlight(ctx context.Context, key string) *flight {
	l.flightMu.Lock()
	defer l.flightMu.Unlock()

	f, ok := l.flights[key]
	if !ok {
		l.flightSeq++
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{
			id:     key + "@" + strconv.FormatUint(l.flightSeq, 10),
			ctx:    runCtx,
			cancel: cancel,
		}
		f.setStage(StageInit)
		l.flights[key] = f
	}
	f.waiters++
	return f
}

// leaveFlight 等待方离开；最后一个离开时取消运行并摘除登记
func (l *Loader) leaveFlight(key string, f *flight) {
	l.flightMu.Lock()
	f.waiters--
	last := f.waiters == 0
	if last && l.flights[key] == f {
		delete(l.flights, key)
	}
	l.flightMu.Unlock()

	if last {
		f.cancel()
	}
}

// finishFlight 运行结束后摘除登记，后来的调用方开始新的运行
func (l *Loader) finishFlight(key string, f *flight) {
	l.flightMu.Lock()
	if l.flights[key] == f {
		delete(l.flights, key)
	}
	l.flightMu.Unlock()
}

// loadShared 以单飞方式执行加载：相同 key 的并发请求共享一次流水线，
// 每个调用方只因自己的 ctx 取消而提前返回。
func (l *Loader) loadShared(ctx context.Context, key string, size Size, version string, forceReload bool) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, newLoadError(types.ErrCanceled, size, versionOrLatest(version), StageInit, err)
	}
	f := l.joinFlight(ctx, key)
	defer l.leaveFlight(key, f)

	ch := l.group.DoChan(f.id, func() (any, error) {
		defer l.finishFlight(key, f)
		return l.run(f.ctx, size, version, forceReload, f.setStage)
	})

	select {
	case <-ctx.Done():
		return nil, newLoadError(types.ErrCanceled, size, versionOrLatest(version), f.currentStage(), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Debug("artifact load shared", zap.String("key", key))
		}
		return res.Val.(*Artifact), nil
	}
}
