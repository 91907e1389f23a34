package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-core/backend/pkg/redis"
)

// Journal 待对账记录的存放处
// 生产环境由 Redis 实现（*redis.Client）；Redis 不可用时降级为进程内实现
type Journal interface {
	Record(ctx context.Context, entry redis.ReconcileEntry) error
	List(ctx context.Context) ([]redis.ReconcileEntry, error)
	Resolve(ctx context.Context, id string) error
}

// 对账记录类型
const (
	EntryPartialCommit            = "partial_commit"
	EntryReconciliationIncomplete = "reconciliation_incomplete"
)

func roomEntryID(roomID, allocationID string) string {
	return "room:" + roomID + ":" + allocationID
}

func attendanceEntryID(key DayKey) string {
	return "attendance:" + key.String()
}

type memoryJournal struct {
	mu      sync.Mutex
	entries map[string]redis.ReconcileEntry
}

// NewMemoryJournal 进程内对账日志，重启即丢失
func NewMemoryJournal() Journal {
	return &memoryJournal{entries: make(map[string]redis.ReconcileEntry)}
}

func (j *memoryJournal) Record(_ context.Context, entry redis.ReconcileEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	j.entries[entry.ID] = entry
	return nil
}

func (j *memoryJournal) List(_ context.Context) ([]redis.ReconcileEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	result := make([]redis.ReconcileEntry, 0, len(j.entries))
	for _, e := range j.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].RecordedAt.Equal(result[b].RecordedAt) {
			return result[a].ID < result[b].ID
		}
		return result[a].RecordedAt.Before(result[b].RecordedAt)
	})
	return result, nil
}

func (j *memoryJournal) Resolve(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, id)
	return nil
}
