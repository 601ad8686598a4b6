package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atshelchin/snapshare.link/internal/domain/model"
	"github.com/atshelchin/snapshare.link/internal/identity"
	"github.com/atshelchin/snapshare.link/internal/quota"
	"github.com/atshelchin/snapshare.link/internal/repository"
	"github.com/atshelchin/snapshare.link/internal/service"
	"github.com/atshelchin/snapshare.link/internal/storage"
)

// --- Фейки зависимостей сервисного слоя ---

type fakeObjectStorage struct {
	presigned map[string]int64
	objects   map[string]*storage.ObjectInfo
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{
		presigned: make(map[string]int64),
		objects:   make(map[string]*storage.ObjectInfo),
	}
}

func (f *fakeObjectStorage) PresignPut(_ context.Context, key string, size int64, _ time.Duration) (string, error) {
	f.presigned[key] = size
	return "https://storage.example.com/" + key + "?signed", nil
}

func (f *fakeObjectStorage) Probe(_ context.Context, key string) (*storage.ObjectInfo, error) {
	info, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectMissing
	}
	return info, nil
}

type fakeLedger struct {
	decision *quota.Decision
}

func (f *fakeLedger) CheckAndReserve(_ context.Context, _ string, _, _ int64) (*quota.Decision, error) {
	if f.decision != nil {
		return f.decision, nil
	}
	return &quota.Decision{Allowed: true}, nil
}

type fakeFileRepo struct {
	records []*model.FileRecord
}

func (f *fakeFileRepo) Insert(_ context.Context, rec *model.FileRecord) error {
	for _, existing := range f.records {
		if existing.FileKey == rec.FileKey {
			return repository.ErrConflict
		}
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeFileRepo) ListRecent(_ context.Context, channelID string, limit int) ([]*model.FileRecord, error) {
	out := []*model.FileRecord{}
	for _, rec := range f.records {
		if rec.ChannelID == channelID {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeFileRepo) ListNewer(_ context.Context, channelID string, watermark int64) ([]*model.FileRecord, error) {
	out := []*model.FileRecord{}
	for _, rec := range f.records {
		if rec.ChannelID == channelID && rec.CreatedAt > watermark {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeFileRepo) UsageSince(_ context.Context, uploaderHash string, since time.Time) (*repository.UploaderUsage, error) {
	usage := &repository.UploaderUsage{}
	cutoff := since.UnixMilli()
	for _, rec := range f.records {
		if rec.UploaderHash == uploaderHash && rec.CreatedAt >= cutoff {
			usage.FileCount++
			usage.ByteTotal += rec.FileSize
		}
	}
	return usage, nil
}

// newTestHandler собирает APIHandler поверх фейков.
func newTestHandler(store *fakeObjectStorage, ledger *fakeLedger, repo *fakeFileRepo) *APIHandler {
	grants := service.NewGrantService(store, ledger, int64(100)<<20, time.Hour, slog.Default())
	register := service.NewRegisterService(store, repo, nil, slog.Default())
	feed := service.NewFeedService(repo, nil, 10, slog.Default())
	health := NewHealthHandler(nil, nil)
	return NewAPIHandler(grants, register, feed, health, 50*time.Millisecond, slog.Default())
}

// --- Выдача мандатов ---

func TestCreateUploadGrantSingle(t *testing.T) {
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-presigned-upload-url",
		strings.NewReader(`{"fileSizeBytes": 2048}`))
	rec := httptest.NewRecorder()

	h.HandleCreateUploadGrant(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}

	var resp struct {
		Success bool               `json:"success"`
		Data    *model.UploadGrant `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if !resp.Success {
		t.Error("success = false, ожидался true")
	}
	if resp.Data == nil {
		t.Fatal("data отсутствует в ответе")
	}
	if resp.Data.Method != "PUT" {
		t.Errorf("method = %q, ожидался PUT", resp.Data.Method)
	}
	if resp.Data.FileSizeBytes != 2048 {
		t.Errorf("file_size_bytes = %d, ожидалось 2048", resp.Data.FileSizeBytes)
	}
	if resp.Data.URL == "" || resp.Data.FileKey == "" {
		t.Error("url и file_key должны быть заполнены")
	}
}

func TestCreateUploadGrantBatch(t *testing.T) {
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, &fakeFileRepo{})

	// Пакетная форма — массив размеров в байтах.
	req := httptest.NewRequest(http.MethodPost, "/api/create-presigned-upload-url",
		strings.NewReader(`{"files": [1024, 2048]}`))
	rec := httptest.NewRecorder()

	h.HandleCreateUploadGrant(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool                 `json:"success"`
		Data    []*model.UploadGrant `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("выдано %d мандатов, ожидалось 2", len(resp.Data))
	}
	if resp.Data[0].FileSizeBytes != 1024 || resp.Data[1].FileSizeBytes != 2048 {
		t.Errorf("размеры мандатов = %d и %d, ожидались 1024 и 2048",
			resp.Data[0].FileSizeBytes, resp.Data[1].FileSizeBytes)
	}
	if resp.Data[0].FileKey == resp.Data[1].FileKey {
		t.Error("мандаты пакета должны иметь разные file_key")
	}
}

func TestCreateUploadGrantOversize(t *testing.T) {
	store := newFakeObjectStorage()
	h := newTestHandler(store, &fakeLedger{}, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-presigned-upload-url",
		strings.NewReader(`{"fileSizeBytes": 157286400}`)) // 150 MiB
	rec := httptest.NewRecorder()

	h.HandleCreateUploadGrant(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидался 400", rec.Code)
	}
	if len(store.presigned) != 0 {
		t.Error("presigned URL не должен выдаваться при превышении потолка")
	}
}

func TestCreateUploadGrantInvalidBody(t *testing.T) {
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-presigned-upload-url",
		strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	h.HandleCreateUploadGrant(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидался 400", rec.Code)
	}
}

func TestCreateUploadGrantQuotaDenied(t *testing.T) {
	ledger := &fakeLedger{decision: &quota.Decision{
		Allowed: false,
		Reason:  quota.ReasonByteTotal,
		Window:  quota.WindowHour,
		Current: 900,
		Max:     1000,
	}}
	h := newTestHandler(newFakeObjectStorage(), ledger, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-presigned-upload-url",
		strings.NewReader(`{"fileSizeBytes": 500}`))
	rec := httptest.NewRecorder()

	h.HandleCreateUploadGrant(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("статус = %d, ожидался 429", rec.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Limit   struct {
			Current int64  `json:"current"`
			Max     int64  `json:"max"`
			Window  string `json:"window"`
			Unit    string `json:"unit"`
		} `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Success {
		t.Error("success = true, ожидался false")
	}
	if resp.Limit.Current != 900 || resp.Limit.Max != 1000 {
		t.Errorf("limit = {%d, %d}, ожидалось {900, 1000}", resp.Limit.Current, resp.Limit.Max)
	}
	if resp.Limit.Window != "hour" {
		t.Errorf("window = %q, ожидался hour", resp.Limit.Window)
	}
	if resp.Limit.Unit != "bytes" {
		t.Errorf("unit = %q, ожидался bytes для байтового потолка", resp.Limit.Unit)
	}
}

func TestCreateUploadGrantQuotaDeniedFileCountOmitsUnit(t *testing.T) {
	ledger := &fakeLedger{decision: &quota.Decision{
		Allowed: false,
		Reason:  quota.ReasonFileCount,
		Window:  quota.WindowDay,
		Current: 1000,
		Max:     1000,
	}}
	h := newTestHandler(newFakeObjectStorage(), ledger, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-presigned-upload-url",
		strings.NewReader(`{"fileSizeBytes": 500}`))
	rec := httptest.NewRecorder()

	h.HandleCreateUploadGrant(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("статус = %d, ожидался 429", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"unit"`) {
		t.Error("unit не должен присутствовать для файлового потолка")
	}
}

// --- Регистрация файлов ---

func TestAddFile(t *testing.T) {
	store := newFakeObjectStorage()
	store.objects["2025-01-01T10/abc"] = &storage.ObjectInfo{Size: 4096, ContentType: "image/png"}
	repo := &fakeFileRepo{}
	h := newTestHandler(store, &fakeLedger{}, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/add-file",
		strings.NewReader(`{"channel_id": "ch-1", "file_key": "2025-01-01T10/abc", "file_name": "cat.png"}`))
	req.Header.Set("CF-Connecting-IP", "203.0.113.7")
	rec := httptest.NewRecorder()

	h.HandleAddFile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200: %s", rec.Code, rec.Body.String())
	}

	var resp addFileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Count != 1 || len(resp.Files) != 1 {
		t.Fatalf("count = %d, files = %d, ожидалось по 1", resp.Count, len(resp.Files))
	}

	got := resp.Files[0]
	if got.FileSize != 4096 {
		t.Errorf("file_size = %d, ожидалось 4096 (из пробы хранилища)", got.FileSize)
	}
	if got.FileType != "image/png" {
		t.Errorf("file_type = %q, ожидался image/png", got.FileType)
	}
	if got.UploaderHash != identity.Hash("203.0.113.7") {
		t.Errorf("uploader_hash_ip = %q не совпадает с хэшем адреса", got.UploaderHash)
	}
}

func TestAddFileMissingFields(t *testing.T) {
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/add-file",
		strings.NewReader(`{"channel_id": "ch-1"}`))
	rec := httptest.NewRecorder()

	h.HandleAddFile(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидался 400", rec.Code)
	}
}

func TestAddFileObjectMissing(t *testing.T) {
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/add-file",
		strings.NewReader(`{"channel_id": "ch-1", "file_key": "nope", "file_name": "x"}`))
	rec := httptest.NewRecorder()

	h.HandleAddFile(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидался 400", rec.Code)
	}
}

func TestAddFileDuplicateKey(t *testing.T) {
	store := newFakeObjectStorage()
	store.objects["k1"] = &storage.ObjectInfo{Size: 10, ContentType: "text/plain"}
	repo := &fakeFileRepo{}
	h := newTestHandler(store, &fakeLedger{}, repo)

	body := `{"channel_id": "ch-1", "file_key": "k1", "file_name": "a.txt"}`

	first := httptest.NewRecorder()
	h.HandleAddFile(first, httptest.NewRequest(http.MethodPost, "/api/add-file", strings.NewReader(body)))
	if first.Code != http.StatusOK {
		t.Fatalf("первая регистрация: статус = %d, ожидался 200", first.Code)
	}

	second := httptest.NewRecorder()
	h.HandleAddFile(second, httptest.NewRequest(http.MethodPost, "/api/add-file", strings.NewReader(body)))
	if second.Code != http.StatusBadRequest {
		t.Fatalf("повторная регистрация: статус = %d, ожидался 400", second.Code)
	}
}

// --- Лента канала ---

func TestQueryFiles(t *testing.T) {
	repo := &fakeFileRepo{records: []*model.FileRecord{
		{ChannelID: "ch-1", FileKey: "k1", FileName: "a", CreatedAt: 100},
		{ChannelID: "ch-2", FileKey: "k2", FileName: "b", CreatedAt: 200},
	}}
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/query-files-by-channel?channel_id=ch-1", nil)
	rec := httptest.NewRecorder()

	h.HandleQueryFiles(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}

	var resp queryFilesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Data.ChannelID != "ch-1" {
		t.Errorf("channel_id = %q, ожидался ch-1", resp.Data.ChannelID)
	}
	if len(resp.Data.ChannelFiles) != 1 {
		t.Fatalf("записей = %d, ожидалась 1", len(resp.Data.ChannelFiles))
	}
	if resp.Data.ChannelFiles[0].FileKey != "k1" {
		t.Errorf("file_key = %q, ожидался k1", resp.Data.ChannelFiles[0].FileKey)
	}
}

func TestQueryFilesEmptyChannelID(t *testing.T) {
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/query-files-by-channel", nil)
	rec := httptest.NewRecorder()

	h.HandleQueryFiles(rec, req)

	// Пустой channel_id — не ошибка: пустая лента в успешном ответе.
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"channelFiles":[]`) {
		t.Errorf("ожидалась пустая лента channelFiles, получено: %s", rec.Body.String())
	}
}

// --- Live-поток ---

func TestStreamFilesMissingChannelID(t *testing.T) {
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, &fakeFileRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/stream-files-by-channel", nil)
	rec := httptest.NewRecorder()

	h.HandleStreamFiles(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидался 400", rec.Code)
	}
}

func TestStreamFilesInitialEvent(t *testing.T) {
	repo := &fakeFileRepo{records: []*model.FileRecord{
		{ChannelID: "ch-1", FileKey: "k1", FileName: "a", CreatedAt: 100},
	}}
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, repo)

	// Отменённый контекст: обработчик отдаёт initial и сразу завершается.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream-files-by-channel?channel_id=ch-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.HandleStreamFiles(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, ожидался text/event-stream", ct)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("тело не начинается с SSE-кадра: %q", body)
	}

	payload := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	var event struct {
		Type string              `json:"type"`
		Data []*model.FileRecord `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("разбор SSE-кадра: %v", err)
	}
	if event.Type != "initial" {
		t.Errorf("type = %q, ожидался initial", event.Type)
	}
	if len(event.Data) != 1 || event.Data[0].FileKey != "k1" {
		t.Errorf("initial данные не совпадают: %+v", event.Data)
	}
}

func TestStreamFilesUpdateEvent(t *testing.T) {
	repo := &fakeFileRepo{records: []*model.FileRecord{
		{ChannelID: "ch-1", FileKey: "k1", FileName: "a", CreatedAt: 100},
	}}
	h := newTestHandler(newFakeObjectStorage(), &fakeLedger{}, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream-files-by-channel?channel_id=ch-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	// Новая запись появляется после снапшота и до первого тика.
	repo.records = append(repo.records, &model.FileRecord{
		ChannelID: "ch-1", FileKey: "k2", FileName: "b", CreatedAt: time.Now().UnixMilli() + int64(time.Hour/time.Millisecond),
	})

	done := make(chan struct{})
	go func() {
		h.HandleStreamFiles(rec, req)
		close(done)
	}()

	// Ждём минимум один тик опроса (pollInterval = 50ms).
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"initial"`) {
		t.Errorf("нет initial-кадра: %q", body)
	}
	if !strings.Contains(body, `"type":"update"`) {
		t.Errorf("нет update-кадра: %q", body)
	}
	if !strings.Contains(body, `"file_key":"k2"`) {
		t.Errorf("update не содержит новую запись: %q", body)
	}
}

// --- Извлечение адреса загрузившего ---

func TestUploaderAddress(t *testing.T) {
	tests := []struct {
		name       string
		cfIP       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"cf-connecting-ip приоритетнее", "203.0.113.7", "10.0.0.1", "192.0.2.1:1234", "203.0.113.7"},
		{"первый адрес x-forwarded-for", "", "198.51.100.2, 10.0.0.1", "192.0.2.1:1234", "198.51.100.2"},
		{"host из remote addr", "", "", "192.0.2.1:1234", "192.0.2.1"},
		{"remote addr без порта", "", "", "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.cfIP != "" {
				req.Header.Set("CF-Connecting-IP", tt.cfIP)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			if got := uploaderAddress(req); got != tt.want {
				t.Errorf("uploaderAddress() = %q, ожидался %q", got, tt.want)
			}
		})
	}
}

// --- Health endpoints ---

type staticChecker struct {
	status  string
	message string
}

func (c *staticChecker) CheckReady() (string, string) { return c.status, c.message }

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("ожидался status ok: %s", rec.Body.String())
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name     string
		pg       ReadinessChecker
		redis    ReadinessChecker
		wantCode int
	}{
		{"всё ok", &staticChecker{status: "ok"}, &staticChecker{status: "ok"}, http.StatusOK},
		{"redis отсутствует при scan", &staticChecker{status: "ok"}, nil, http.StatusOK},
		{"postgresql fail", &staticChecker{status: "fail", message: "connection refused"}, nil, http.StatusServiceUnavailable},
		{"redis fail", &staticChecker{status: "ok"}, &staticChecker{status: "fail"}, http.StatusServiceUnavailable},
		{"pg checker не задан", nil, nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.redis)

			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидался %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestHealthReadyOmitsRedisForScanBackend(t *testing.T) {
	h := NewHealthHandler(&staticChecker{status: "ok"}, nil)

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if strings.Contains(rec.Body.String(), `"redis"`) {
		t.Errorf("проверка redis не должна присутствовать: %s", rec.Body.String())
	}
}
