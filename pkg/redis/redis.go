package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campus-core/backend/config"
)

// Client Redis 客户端封装
// 用于部分提交对账日志与写接口限流
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// NewFromClient 包装已有连接（测试中配合 miniredis 使用）
func NewFromClient(rdb *goredis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// ── 对账日志 ──
//
// 多步操作在补偿重试后仍未完成时写入一条待对账记录，
// 由运维或自动对账任务处理后删除。以 Hash 存储，field 为条目 ID

const pendingKey = "reconcile:pending"

// ReconcileEntry 一条待对账记录
type ReconcileEntry struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"` // partial_commit | reconciliation_incomplete
	Operation     string    `json:"operation"`
	AllocationID  string    `json:"allocation_id,omitempty"`
	RoomID        string    `json:"room_id,omitempty"`
	StudentID     string    `json:"student_id,omitempty"`
	Course        string    `json:"course,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Date          string    `json:"date,omitempty"`
	CompletedStep string    `json:"completed_step"`
	FailedStep    string    `json:"failed_step"`
	Deleted       int64     `json:"deleted,omitempty"`
	Attempted     int       `json:"attempted,omitempty"`
	Error         string    `json:"error"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Record 写入（或覆盖同 ID 的）待对账记录
func (c *Client) Record(ctx context.Context, entry ReconcileEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化对账记录失败: %w", err)
	}
	return c.rdb.HSet(ctx, pendingKey, entry.ID, payload).Err()
}

// List 返回全部待对账记录，按记录时间升序
func (c *Client) List(ctx context.Context) ([]ReconcileEntry, error) {
	raw, err := c.rdb.HGetAll(ctx, pendingKey).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]ReconcileEntry, 0, len(raw))
	for id, v := range raw {
		var e ReconcileEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			// 损坏的条目保留在 Redis 中供人工检查，不阻塞其余条目
			c.logger.Warn("跳过无法解析的对账记录", zap.String("id", id), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RecordedAt.Equal(entries[j].RecordedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].RecordedAt.Before(entries[j].RecordedAt)
	})
	return entries, nil
}

// Resolve 删除已处理的记录；记录不存在时不报错
func (c *Client) Resolve(ctx context.Context, id string) error {
	return c.rdb.HDel(ctx, pendingKey, id).Err()
}

// ── 限流 ──

const rateLimitPrefix = "rate_limit:"

// CheckRateLimit 固定窗口计数限流，返回本次请求是否放行
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := rateLimitPrefix + key

	count, err := c.rdb.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// 窗口内首个请求负责设置过期时间
		if err := c.rdb.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
