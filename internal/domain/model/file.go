// Пакет model — доменные модели snapshare.
// FileRecord — маппинг таблицы files (подтверждённые загрузки).
package model

// FileRecord — запись подтверждённой загрузки в реестре файлов.
// Запись неизменяема: создаётся один раз при регистрации, никогда не
// обновляется и не удаляется. JSON-теги соответствуют wire-формату API.
type FileRecord struct {
	// ChannelID — непрозрачный ключ канала, группирует загрузки
	ChannelID string `json:"channel_id"`
	// FileKey — глобально уникальный ключ объекта в хранилище (primary key)
	FileKey string `json:"file_key"`
	// FileName — отображаемое имя файла (задаёт клиент, не доверять)
	FileName string `json:"file_name"`
	// FileType — MIME-тип, получен из HEAD-пробы хранилища (не от клиента)
	FileType string `json:"file_type"`
	// FileSize — размер в байтах, получен из HEAD-пробы (не от клиента)
	FileSize int64 `json:"file_size"`
	// UploaderHash — непрозрачный идентификатор загрузившего (16 hex)
	UploaderHash string `json:"uploader_hash_ip"`
	// CreatedAt — время регистрации, миллисекунды с эпохи.
	// Неубывающее в порядке вставки; рассинхрон часов между
	// конкурентными писателями допускается, но не корректируется.
	CreatedAt int64 `json:"created_at"`
}

// UploadGrant — временный мандат на одну запись в объектное хранилище.
// Не персистируется: единственный долговременный след — FileRecord,
// если клиент завершил загрузку и вызвал регистрацию.
type UploadGrant struct {
	// URL — подписанный URL для загрузки
	URL string `json:"url"`
	// Method — HTTP-метод загрузки (всегда PUT)
	Method string `json:"method"`
	// FileKey — ключ объекта, под которым нужно загружать
	FileKey string `json:"file_key"`
	// FileSizeBytes — заявленный размер; хранилище требует точного совпадения
	FileSizeBytes int64 `json:"file_size_bytes"`
	// MaxSizeBytes — потолок размера одного файла
	MaxSizeBytes int64 `json:"max_size_bytes"`
	// ExpiresIn — срок действия мандата в секундах
	ExpiresIn int64 `json:"expires_in"`
}
