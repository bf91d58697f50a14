package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/visaflow/visaflow/internal/broker"
	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/queue"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// setupIngest создаёт сервис ingest с фейковыми репозиториями.
func setupIngest(t *testing.T) (*IngestService, *diskstore.Manager, *fakeFiles, *broker.Hub) {
	t.Helper()

	store := newTestStore(t)
	svc, files, hub := setupIngestWith(t, store)
	return svc, store, files, hub
}

// setupIngestWith — то же, но поверх заранее созданного хранилища.
func setupIngestWith(t *testing.T, store *diskstore.Manager) (*IngestService, *fakeFiles, *broker.Hub) {
	t.Helper()

	apps := &fakeApps{apps: map[int64]*model.VisaApplication{
		1: {ID: 1, ApplicantID: 42, Country: "DE", Status: model.ApplicationStatusDraft},
	}}
	cats := &fakeCats{cats: map[int64]*model.FileCategory{
		10: {ID: 10, Name: "Passport", Slug: "passport"},
	}}
	files := newFakeFiles()
	hub := broker.NewHub(16, testLogger())
	q := queue.NewMemoryQueue(4)

	svc := NewIngestService(apps, cats, files, store, q, hub, 1, testLogger())
	return svc, files, hub
}

// putTempFile кладёт файл во временное хранилище и возвращает дескриптор.
func putTempFile(t *testing.T, store *diskstore.Manager, content string) *model.Descriptor {
	t.Helper()

	tempPath := "tmp/visa-applications/1/9f1c2e3a.pdf"
	if _, err := store.WriteStream(diskstore.StoreTemp, tempPath, strings.NewReader(content)); err != nil {
		t.Fatalf("запись временного файла: %v", err)
	}
	return &model.Descriptor{
		VisaApplicationID: 1,
		ApplicantID:       42,
		FileCategoryID:    10,
		TemporaryStore:    diskstore.StoreTemp,
		TemporaryPath:     tempPath,
		OriginalName:      "passport.pdf",
		MimeType:          "application/pdf",
		SizeBytes:         int64(len(content)),
	}
}

// recvEvent ждёт одно событие из подписки.
func recvEvent(t *testing.T, sub *broker.Subscription) map[string]any {
	t.Helper()

	select {
	case msg := <-sub.C:
		var payload map[string]any
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatalf("payload не парсится: %v", err)
		}
		if msg.Event != model.EventName {
			t.Errorf("имя события %q, ожидалось %q", msg.Event, model.EventName)
		}
		return payload
	case <-time.After(time.Second):
		t.Fatal("событие не получено")
		return nil
	}
}

func TestIngestProcess_Stored(t *testing.T) {
	svc, store, files, hub := setupIngest(t)
	ctx := context.Background()

	sub := hub.Subscribe(model.ApplicationChannel(1))
	defer sub.Close()

	desc := putTempFile(t, store, "%PDF-1.4 test")
	svc.Process(ctx, desc)

	// Файл в постоянном хранилище, временная копия удалена
	finalPath := "visa-applications/1/files/9f1c2e3a.pdf"
	if !store.Exists(diskstore.StoreDurable, finalPath) {
		t.Error("файл не появился в постоянном хранилище")
	}
	if store.Exists(diskstore.StoreTemp, desc.TemporaryPath) {
		t.Error("временная копия не удалена")
	}

	// Запись создана
	rec, err := files.GetByPath(ctx, finalPath)
	if err != nil {
		t.Fatalf("запись не создана: %v", err)
	}
	if rec.StoredName != "9f1c2e3a.pdf" || rec.OriginalName != "passport.pdf" {
		t.Errorf("запись собрана неверно: %+v", rec)
	}

	// Событие stored с полным снимком
	payload := recvEvent(t, sub)
	if payload["status"] != "stored" {
		t.Fatalf("status = %v", payload["status"])
	}
	file, ok := payload["file"].(map[string]any)
	if !ok {
		t.Fatalf("нет поля file: %v", payload)
	}
	if file["path"] != finalPath || file["store"] != diskstore.StoreDurable {
		t.Errorf("file: %v", file)
	}
	owning, ok := file["owningResource"].(map[string]any)
	if !ok || owning["country"] != "DE" || owning["status"] != "draft" {
		t.Errorf("owningResource: %v", file["owningResource"])
	}
	category, ok := file["category"].(map[string]any)
	if !ok || category["slug"] != "passport" {
		t.Errorf("category: %v", file["category"])
	}
}

func TestIngestProcess_Failures(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*model.Descriptor)
		wantReason string
	}{
		{
			name:       "заявка отсутствует",
			mutate:     func(d *model.Descriptor) { d.VisaApplicationID = 999 },
			wantReason: "application_missing",
		},
		{
			name:       "временный файл отсутствует",
			mutate:     func(d *model.Descriptor) { d.TemporaryPath = "tmp/visa-applications/1/gone.pdf" },
			wantReason: "temporary_file_missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, files, hub := setupIngest(t)
			ctx := context.Background()

			desc := putTempFile(t, store, "data")
			tt.mutate(desc)

			sub := hub.Subscribe(model.ApplicationChannel(desc.VisaApplicationID))
			defer sub.Close()

			svc.Process(ctx, desc)

			payload := recvEvent(t, sub)
			if payload["status"] != "failed" || payload["reason"] != tt.wantReason {
				t.Errorf("payload = %v", payload)
			}

			// Записей нет, исходный временный файл не тронут
			if len(files.byPath) != 0 {
				t.Error("при терминальной ошибке запись создаваться не должна")
			}
			if !store.Exists(diskstore.StoreTemp, "tmp/visa-applications/1/9f1c2e3a.pdf") {
				t.Error("временный файл должен остаться для ручного восстановления")
			}
		})
	}
}

func TestIngestProcess_ReadStreamFailed(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("под root права доступа к файлам не действуют")
	}

	tempRoot := t.TempDir()
	store, err := diskstore.NewManager(map[string]string{
		diskstore.StoreTemp:    tempRoot,
		diskstore.StoreDurable: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Ошибка создания diskstore: %v", err)
	}
	svc, files, hub := setupIngestWith(t, store)
	ctx := context.Background()

	desc := putTempFile(t, store, "data")
	// Файл на месте, но открыть его на чтение нельзя
	if err := os.Chmod(filepath.Join(tempRoot, filepath.FromSlash(desc.TemporaryPath)), 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	sub := hub.Subscribe(model.ApplicationChannel(1))
	defer sub.Close()

	svc.Process(ctx, desc)

	payload := recvEvent(t, sub)
	if payload["status"] != "failed" || payload["reason"] != "read_stream_failed" {
		t.Errorf("payload = %v", payload)
	}
	if len(files.byPath) != 0 {
		t.Error("при терминальной ошибке запись создаваться не должна")
	}
	if store.Exists(diskstore.StoreDurable, "visa-applications/1/files/9f1c2e3a.pdf") {
		t.Error("в постоянном хранилище не должно появиться файла")
	}
	if !store.Exists(diskstore.StoreTemp, desc.TemporaryPath) {
		t.Error("временный файл должен остаться для ручного восстановления")
	}
}

func TestIngestProcess_WriteStreamFailed(t *testing.T) {
	store := newTestStore(t)
	svc, files, hub := setupIngestWith(t, store)
	ctx := context.Background()

	// Занимаем конечный путь непустой директорией: атомарное
	// переименование при записи в постоянное хранилище сорвётся.
	finalPath := "visa-applications/1/files/9f1c2e3a.pdf"
	if _, err := store.WriteStream(diskstore.StoreDurable, finalPath+"/blocker", strings.NewReader("x")); err != nil {
		t.Fatalf("подготовка конечного пути: %v", err)
	}

	desc := putTempFile(t, store, "data")

	sub := hub.Subscribe(model.ApplicationChannel(1))
	defer sub.Close()

	svc.Process(ctx, desc)

	payload := recvEvent(t, sub)
	if payload["status"] != "failed" || payload["reason"] != "write_stream_failed" {
		t.Errorf("payload = %v", payload)
	}
	if len(files.byPath) != 0 {
		t.Error("при терминальной ошибке запись создаваться не должна")
	}
	if !store.Exists(diskstore.StoreTemp, desc.TemporaryPath) {
		t.Error("временный файл должен остаться для ручного восстановления")
	}
}

func TestIngestProcess_RedeliveryAfterSuccess(t *testing.T) {
	svc, store, _, hub := setupIngest(t)
	ctx := context.Background()

	sub := hub.Subscribe(model.ApplicationChannel(1))
	defer sub.Close()

	desc := putTempFile(t, store, "data")
	svc.Process(ctx, desc)
	first := recvEvent(t, sub)
	if first["status"] != "stored" {
		t.Fatalf("первая обработка: %v", first)
	}

	// Повторная доставка: временная копия уже удалена, но запись есть —
	// событие stored публикуется заново, а не ложный failed.
	svc.Process(ctx, desc)
	second := recvEvent(t, sub)
	if second["status"] != "stored" {
		t.Errorf("повторная доставка: %v", second)
	}
}

func TestIngestStartStop(t *testing.T) {
	apps := &fakeApps{apps: map[int64]*model.VisaApplication{
		1: {ID: 1, ApplicantID: 42, Country: "DE", Status: model.ApplicationStatusDraft},
	}}
	cats := &fakeCats{cats: map[int64]*model.FileCategory{
		10: {ID: 10, Name: "Passport", Slug: "passport"},
	}}
	files := newFakeFiles()
	store := newTestStore(t)
	hub := broker.NewHub(16, testLogger())
	q := queue.NewMemoryQueue(4)
	svc := NewIngestService(apps, cats, files, store, q, hub, 2, testLogger())

	ctx := context.Background()
	svc.Start(ctx)

	desc := putTempFile(t, store, "data")
	if err := q.Enqueue(ctx, desc); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Ждём, пока воркер заберёт и обработает дескриптор
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := files.GetByPath(ctx, "visa-applications/1/files/9f1c2e3a.pdf"); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := files.GetByPath(ctx, "visa-applications/1/files/9f1c2e3a.pdf"); err != nil {
		t.Error("воркер не обработал дескриптор")
	}

	svc.Stop()
}
