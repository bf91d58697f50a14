package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/visaflow/visaflow/internal/authz"
	"github.com/visaflow/visaflow/internal/broker"
	"github.com/visaflow/visaflow/internal/domain/model"
)

// setupEvents собирает SSE endpoint поверх реального HTTP-сервера:
// httptest.ResponseRecorder не умеет стриминг.
func setupEvents(t *testing.T, userID int64) (*httptest.Server, *broker.Hub) {
	t.Helper()

	apps := newFakeApps()
	apps.add(&model.VisaApplication{ApplicantID: 42, Country: "DE", Status: model.ApplicationStatusDraft})

	hub := broker.NewHub(16, testLogger())
	auth := authz.NewChannelAuthorizer(apps, testLogger())
	handler := NewEventsHandler(hub, auth, time.Hour, testLogger())

	router := chi.NewRouter()
	router.Use(asUser(userID))
	router.Get("/api/v1/visa-applications/{id}/events", handler.Subscribe)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestEventsSubscribe_ReceivesEvent(t *testing.T) {
	srv, hub := setupEvents(t, 42)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/visa-applications/1/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("подключение SSE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("статус %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Ждём регистрации подписчика, затем публикуем
	deadline := time.Now().Add(2 * time.Second)
	channel := model.ApplicationChannel(1)
	for hub.SubscriberCount(channel) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(channel, model.EventName, []byte(`{"status":"failed","reason":"temporary_file_missing"}`))

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("чтение потока: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}

	if event != model.EventName {
		t.Errorf("event = %q", event)
	}
	if !strings.Contains(data, `"temporary_file_missing"`) {
		t.Errorf("data = %q", data)
	}
}

func TestEventsSubscribe_ForbiddenForStranger(t *testing.T) {
	srv, _ := setupEvents(t, 7) // не владелец заявки 1

	resp, err := srv.Client().Get(srv.URL + "/api/v1/visa-applications/1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("статус %d, ожидался 403", resp.StatusCode)
	}
}

func TestEventsSubscribe_ForbiddenForMissingApplication(t *testing.T) {
	srv, _ := setupEvents(t, 42)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/visa-applications/99/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	// Несуществующая заявка неотличима от чужой
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("статус %d, ожидался 403", resp.StatusCode)
	}
}
