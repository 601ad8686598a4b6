package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atshelchin/snapshare.link/internal/repository"
)

// ScanLedger — бэкенд квот, выводящий счётчики на лету из реестра
// файлов: агрегат по записям с created_at >= now − ширина окна.
// Честное скользящее окно без выравнивания по календарю, ценой двух
// агрегирующих запросов на проверку. Резервирование не пишет состояния:
// счётчики порождаются самим реестром при регистрации, поэтому при
// высокой конкуренции возможен кратковременный безвредный перелёт
// потолка (check и последующая запись в реестр не связаны транзакцией).
type ScanLedger struct {
	files  repository.FileRepository
	limits Limits
	logger *slog.Logger
	// now подменяется в тестах
	now func() time.Time
}

// NewScanLedger создаёт scan-бэкенд квот поверх реестра файлов.
func NewScanLedger(files repository.FileRepository, limits Limits, logger *slog.Logger) *ScanLedger {
	return &ScanLedger{
		files:  files,
		limits: limits,
		logger: logger.With(slog.String("component", "quota.scan")),
		now:    time.Now,
	}
}

// CheckAndReserve реализует Ledger сканом реестра.
// Порядок предикатов тот же, что у BucketLedger: файлы/час,
// файлы/сутки, байты/час, байты/сутки.
func (l *ScanLedger) CheckAndReserve(ctx context.Context, identity string, files, bytes int64) (*Decision, error) {
	now := l.now()

	hourUsage, err := l.files.UsageSince(ctx, identity, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	dayUsage, err := l.files.UsageSince(ctx, identity, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	if hourUsage.FileCount+files > l.limits.HourFiles {
		return deny(ReasonFileCount, WindowHour, hourUsage.FileCount, l.limits.HourFiles), nil
	}
	if dayUsage.FileCount+files > l.limits.DayFiles {
		return deny(ReasonFileCount, WindowDay, dayUsage.FileCount, l.limits.DayFiles), nil
	}
	if hourUsage.ByteTotal+bytes > l.limits.HourBytes {
		return deny(ReasonByteTotal, WindowHour, hourUsage.ByteTotal, l.limits.HourBytes), nil
	}
	if dayUsage.ByteTotal+bytes > l.limits.DayBytes {
		return deny(ReasonByteTotal, WindowDay, dayUsage.ByteTotal, l.limits.DayBytes), nil
	}

	return allow(), nil
}
