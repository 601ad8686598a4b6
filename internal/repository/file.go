package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atshelchin/snapshare.link/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `channel_id, file_key, file_name, file_type, file_size,
	uploader_hash_ip, created_at`

// UploaderUsage — агрегат активности загрузившего за окно времени.
// Используется scan-бэкендом квот.
type UploaderUsage struct {
	// FileCount — количество зарегистрированных файлов
	FileCount int64
	// ByteTotal — суммарный размер в байтах
	ByteTotal int64
}

// FileRepository — интерфейс доступа к append-only реестру файлов.
type FileRepository interface {
	// Insert регистрирует новую запись. Повторный file_key — ErrConflict.
	Insert(ctx context.Context, f *model.FileRecord) error
	// ListRecent возвращает последние limit записей канала,
	// отсортированные по created_at по убыванию.
	ListRecent(ctx context.Context, channelID string, limit int) ([]*model.FileRecord, error)
	// ListNewer возвращает записи канала с created_at строго больше
	// watermark, отсортированные по created_at по убыванию.
	ListNewer(ctx context.Context, channelID string, watermark int64) ([]*model.FileRecord, error)
	// UsageSince возвращает количество и суммарный размер файлов
	// загрузившего с created_at >= since (скользящее окно scan-бэкенда).
	UsageSince(ctx context.Context, uploaderHash string, since time.Time) (*UploaderUsage, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий реестра файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (channel_id, file_key, file_name, file_type,
			file_size, uploader_hash_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		f.ChannelID, f.FileKey, f.FileName, f.FileType,
		f.FileSize, f.UploaderHash, f.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: file_key уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации файла: %w", err)
	}
	return nil
}

func (r *fileRepo) ListRecent(ctx context.Context, channelID string, limit int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE channel_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, fileColumns)

	rows, err := r.db.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса файлов канала: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

func (r *fileRepo) ListNewer(ctx context.Context, channelID string, watermark int64) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE channel_id = $1 AND created_at > $2
		ORDER BY created_at DESC`, fileColumns)

	rows, err := r.db.Query(ctx, query, channelID, watermark)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса новых файлов канала: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

func (r *fileRepo) UsageSince(ctx context.Context, uploaderHash string, since time.Time) (*UploaderUsage, error) {
	// created_at хранится в миллисекундах с эпохи
	query := `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0)
		FROM files
		WHERE uploader_hash_ip = $1 AND created_at >= $2`

	usage := &UploaderUsage{}
	err := r.db.QueryRow(ctx, query, uploaderHash, since.UnixMilli()).
		Scan(&usage.FileCount, &usage.ByteTotal)
	if err != nil {
		return nil, fmt.Errorf("ошибка агрегации активности загрузившего: %w", err)
	}
	return usage, nil
}

// scanFiles читает строки результата в срез FileRecord.
func scanFiles(rows pgx.Rows) ([]*model.FileRecord, error) {
	var result []*model.FileRecord
	for rows.Next() {
		f := &model.FileRecord{}
		if err := rows.Scan(
			&f.ChannelID, &f.FileKey, &f.FileName, &f.FileType,
			&f.FileSize, &f.UploaderHash, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}
