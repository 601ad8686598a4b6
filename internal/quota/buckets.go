package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ширины корзин в секундах — естественный срок жизни счётчика:
// одна ширина корзины после последней записи.
const (
	hourBucketTTL = int64(3600)
	dayBucketTTL  = int64(86400)
)

// checkAndReserveScript — атомарная проверка четырёх предикатов и
// резервирование. Lua-скрипт исполняется в Redis как единое целое:
// конкурентный check-then-increment race исключён на стороне стора.
// KEYS: [1] файлы/час, [2] файлы/сутки, [3] байты/час, [4] байты/сутки.
// ARGV: [1] files, [2] bytes, [3..6] потолки в порядке KEYS,
// [7] TTL часовой корзины, [8] TTL суточной корзины.
// Возврат: {0, номер_предиката, текущее_значение} при отказе,
// {1, 0, 0} при успехе.
var checkAndReserveScript = redis.NewScript(`
local hf = tonumber(redis.call('GET', KEYS[1]) or '0')
local df = tonumber(redis.call('GET', KEYS[2]) or '0')
local hb = tonumber(redis.call('GET', KEYS[3]) or '0')
local db = tonumber(redis.call('GET', KEYS[4]) or '0')
local files = tonumber(ARGV[1])
local bytes = tonumber(ARGV[2])
if hf + files > tonumber(ARGV[3]) then return {0, 1, hf} end
if df + files > tonumber(ARGV[4]) then return {0, 2, df} end
if hb + bytes > tonumber(ARGV[5]) then return {0, 3, hb} end
if db + bytes > tonumber(ARGV[6]) then return {0, 4, db} end
redis.call('INCRBY', KEYS[1], files)
redis.call('EXPIRE', KEYS[1], ARGV[7])
redis.call('INCRBY', KEYS[2], files)
redis.call('EXPIRE', KEYS[2], ARGV[8])
redis.call('INCRBY', KEYS[3], bytes)
redis.call('EXPIRE', KEYS[3], ARGV[7])
redis.call('INCRBY', KEYS[4], bytes)
redis.call('EXPIRE', KEYS[4], ARGV[8])
return {1, 0, 0}
`)

// BucketLedger — бэкенд квот на Redis-счётчиках по календарным корзинам.
// Корзины выровнены по календарю (час и сутки UTC): запросы в 23:59 и
// 00:01 попадают в разные суточные корзины. Это осознанный размен
// точности границы окна на O(1) стоимость запроса; честное скользящее
// окно даёт ScanLedger.
type BucketLedger struct {
	rdb    *redis.Client
	limits Limits
	logger *slog.Logger
	// now подменяется в тестах
	now func() time.Time
}

// NewBucketLedger создаёт Redis-бэкенд квот.
func NewBucketLedger(rdb *redis.Client, limits Limits, logger *slog.Logger) *BucketLedger {
	return &BucketLedger{
		rdb:    rdb,
		limits: limits,
		logger: logger.With(slog.String("component", "quota.buckets")),
		now:    time.Now,
	}
}

// CheckAndReserve реализует Ledger поверх Lua-скрипта.
// Недоступность Redis фатальна для запроса: ErrLedgerUnavailable.
func (l *BucketLedger) CheckAndReserve(ctx context.Context, identity string, files, bytes int64) (*Decision, error) {
	hourBucket, dayBucket := bucketsAt(l.now())
	keys := []string{
		bucketKey(identity, "files", hourBucket),
		bucketKey(identity, "files", dayBucket),
		bucketKey(identity, "bytes", hourBucket),
		bucketKey(identity, "bytes", dayBucket),
	}
	argv := []any{
		files, bytes,
		l.limits.HourFiles, l.limits.DayFiles,
		l.limits.HourBytes, l.limits.DayBytes,
		hourBucketTTL, dayBucketTTL,
	}

	raw, err := checkAndReserveScript.Run(ctx, l.rdb, keys, argv...).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	return decisionFromReply(raw, l.limits)
}

// decisionFromReply переводит ответ Lua-скрипта в Decision.
// Номер предиката следует фиксированному порядку проверки:
// 1 файлы/час, 2 файлы/сутки, 3 байты/час, 4 байты/сутки.
// Ответ неожиданной формы — ErrLedgerUnavailable: молчаливо
// трактовать его как разрешение нельзя.
func decisionFromReply(raw []any, limits Limits) (*Decision, error) {
	if len(raw) != 3 {
		return nil, fmt.Errorf("%w: неожиданный ответ скрипта (%d элементов)", ErrLedgerUnavailable, len(raw))
	}

	allowed, _ := raw[0].(int64)
	if allowed == 1 {
		return allow(), nil
	}

	predicate, _ := raw[1].(int64)
	current, _ := raw[2].(int64)

	switch predicate {
	case 1:
		return deny(ReasonFileCount, WindowHour, current, limits.HourFiles), nil
	case 2:
		return deny(ReasonFileCount, WindowDay, current, limits.DayFiles), nil
	case 3:
		return deny(ReasonByteTotal, WindowHour, current, limits.HourBytes), nil
	case 4:
		return deny(ReasonByteTotal, WindowDay, current, limits.DayBytes), nil
	default:
		return nil, fmt.Errorf("%w: неизвестный предикат %d", ErrLedgerUnavailable, predicate)
	}
}

// bucketsAt возвращает календарные ключи корзин для момента t (UTC):
// час — "2006-01-02T15", сутки — "2006-01-02".
func bucketsAt(t time.Time) (hourBucket, dayBucket string) {
	utc := t.UTC()
	return utc.Format("2006-01-02T15"), utc.Format("2006-01-02")
}

// bucketKey собирает ключ счётчика: quota:{identity}:{kind}:{bucket}.
func bucketKey(identity, kind, bucket string) string {
	return fmt.Sprintf("quota:%s:%s:%s", identity, kind, bucket)
}

// ReadinessChecker — проверка готовности Redis для health endpoint.
type ReadinessChecker struct {
	rdb *redis.Client
}

// NewReadinessChecker создаёт проверку готовности Redis.
func NewReadinessChecker(rdb *redis.Client) *ReadinessChecker {
	return &ReadinessChecker{rdb: rdb}
}

// CheckReady проверяет подключение к Redis через ping.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
