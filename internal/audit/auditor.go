package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lvdashuaibi/onevote/internal/lock"
	"github.com/lvdashuaibi/onevote/internal/model"
)

const (
	// LeaderLockName 多实例部署时只有持有该锁的实例执行核对
	LeaderLockName = "onevote:audit:leader"
)

// TallySource 提供票数核对数据
type TallySource interface {
	AuditTally(ctx context.Context) ([]model.TallyAudit, error)
}

// VoteRecorder 按选民记录投票指纹，返回true表示该选民之前以不同的指纹出现过
type VoteRecorder interface {
	RecordVote(ctx context.Context, voterID, fingerprint string) (bool, error)
}

// Auditor 周期性核对候选人票数与投票记录是否一致，并检查投票事件中的重复选民
type Auditor struct {
	source      TallySource
	recorder    VoteRecorder
	locker      lock.Lock
	interval    time.Duration
	lockTimeout time.Duration
	logger      *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAuditor(source TallySource, recorder VoteRecorder, locker lock.Lock, interval, lockTimeout time.Duration, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = lock.NewLocalLock()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTimeout <= 0 {
		lockTimeout = interval
	}
	return &Auditor{
		source:      source,
		recorder:    recorder,
		locker:      locker,
		interval:    interval,
		lockTimeout: lockTimeout,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start 启动定时核对
func (a *Auditor) Start() {
	ticker := time.NewTicker(a.interval)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.runAsLeader()
			case <-a.stopChan:
				a.logger.Info("票数核对任务已停止", "event", "auditor_stopped")
				return
			}
		}
	}()
}

// Stop 停止定时核对并等待正在执行的核对结束
func (a *Auditor) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
	})
	a.wg.Wait()
}

// runAsLeader 获取到锁才执行，执行期间按锁超时的一半续约，执行完释放
func (a *Auditor) runAsLeader() {
	acquired, err := a.locker.AcquireLock(LeaderLockName, a.lockTimeout)
	if err != nil {
		a.logger.Warn("获取核对锁失败", "event", "auditor_lock_failed", "error", err)
		return
	}
	if !acquired {
		a.logger.Debug("其他实例正在核对，跳过本轮", "event", "auditor_skipped")
		return
	}
	defer func() {
		if err := a.locker.ReleaseLock(LeaderLockName); err != nil {
			a.logger.Warn("释放核对锁失败", "event", "auditor_unlock_failed", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.interval)
	defer cancel()

	done := make(chan struct{})
	var refresher sync.WaitGroup
	refresher.Add(1)
	go func() {
		defer refresher.Done()
		a.keepLeadership(ctx, cancel, done)
	}()

	_, err = a.RunOnce(ctx)
	close(done)
	refresher.Wait()
	if err != nil {
		a.logger.Warn("票数核对失败", "event", "auditor_run_failed", "error", err)
	}
}

// keepLeadership 核对耗时超过锁超时也不会丢锁；续约失败说明锁已被别人拿走，取消本轮核对
func (a *Auditor) keepLeadership(ctx context.Context, cancel context.CancelFunc, done <-chan struct{}) {
	every := a.lockTimeout / 2
	if every <= 0 {
		every = a.lockTimeout
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := a.locker.RefreshLock(LeaderLockName, a.lockTimeout)
			if err != nil || !held {
				a.logger.Warn("核对锁续约失败，取消本轮核对", "event", "auditor_lock_lost", "error", err)
				cancel()
				return
			}
		}
	}
}

// RunOnce 执行一次核对，返回不一致的候选人
func (a *Auditor) RunOnce(ctx context.Context) ([]model.TallyAudit, error) {
	audits, err := a.source.AuditTally(ctx)
	if err != nil {
		return nil, err
	}

	var drifted []model.TallyAudit
	for _, item := range audits {
		if item.Consistent {
			continue
		}
		drifted = append(drifted, item)
		a.logger.Error("候选人票数与投票记录不一致", "event", "tally_drift_detected",
			"candidate_id", item.CandidateID,
			"party", item.Party,
			"vote_count", item.VoteCount,
			"record_count", item.RecordCount,
		)
	}

	a.logger.Info("票数核对完成", "event", "tally_audited", "candidates", len(audits), "drifted", len(drifted))
	return drifted, nil
}

// ObserveVote 处理一条投票事件。
// 消息至少投递一次，同一事件重复到达不告警；同一选民出现不同的投票才记录告警。
func (a *Auditor) ObserveVote(ctx context.Context, event *model.VoteEvent) error {
	if a.recorder == nil {
		return nil
	}
	conflict, err := a.recorder.RecordVote(ctx, event.VoterID, voteFingerprint(event))
	if err != nil {
		return err
	}
	if conflict {
		a.logger.Error("同一选民出现重复投票事件", "event", "duplicate_vote_event",
			"voter_id", event.VoterID,
			"candidate_id", event.CandidateID,
			"cast_at", event.CastAt,
		)
	}
	return nil
}

func voteFingerprint(event *model.VoteEvent) string {
	return event.CandidateID + "|" + event.CastAt.UTC().Format(time.RFC3339Nano)
}
