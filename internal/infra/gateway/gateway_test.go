package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"skillbridge-quiz-service/internal/domain"
)

func TestChainClientCompletionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/0xabc/status" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(domain.CompletionStatus{
			HasCompletedEntryTest: true,
			EnrolledCourseIDs:     []string{"course-1"},
		})
	}))
	defer server.Close()

	client := NewChainClient(server.URL)
	status, err := client.CompletionStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.HasCompletedEntryTest || len(status.EnrolledCourseIDs) != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestChainClientCommitCompletion(t *testing.T) {
	var got struct {
		UserAddress string `json:"userAddress"`
		ArtifactID  string `json:"artifactId"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/courses/course-1/complete" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewChainClient(server.URL)
	if err := client.CommitCompletion(context.Background(), "0xabc", "course-1", "cid123"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got.UserAddress != "0xabc" || got.ArtifactID != "cid123" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestChainClientSurfacesGatewayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewChainClient(server.URL)
	if err := client.CommitCompletion(context.Background(), "0xabc", "course-1", "cid123"); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestIPFSClientPublishArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ipfs/upload-result" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			QuizResult domain.AttemptSummary `json:"quizResult"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.QuizResult.CourseID != "course-1" || payload.QuizResult.Score != 4 {
			t.Fatalf("unexpected summary %+v", payload.QuizResult)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": "cid123"})
	}))
	defer server.Close()

	client := NewIPFSClient(server.URL, server.URL)
	cid, err := client.PublishArtifact(context.Background(), domain.AttemptSummary{
		CourseID:    "course-1",
		CourseTitle: "Intro to Web3",
		UserAddress: "0xabc",
		Score:       4,
		Total:       5,
		Percentage:  80,
		CompletedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if cid != "cid123" {
		t.Fatalf("expected cid123, got %q", cid)
	}
}

func TestIPFSClientRejectsEmptyCID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewIPFSClient(server.URL, server.URL)
	if _, err := client.PublishArtifact(context.Background(), domain.AttemptSummary{}); err == nil {
		t.Fatalf("expected error on missing cid")
	}
}

func TestProfileReaderResolvesThroughIPFS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/0xabc/profile-cid":
			_ = json.NewEncoder(w).Encode(map[string]string{"cid": "profile-cid"})
		case "/ipfs/profile-cid":
			_ = json.NewEncoder(w).Encode(domain.Profile{UserName: "Ada", Email: "ada@example.com"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	reader := NewProfileReader(NewChainClient(server.URL), NewIPFSClient(server.URL, server.URL))
	profile, found, err := reader.Profile(context.Background(), "0xabc")
	if err != nil || !found {
		t.Fatalf("profile: found=%v err=%v", found, err)
	}
	if profile.UserName != "Ada" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestProfileReaderAbsentProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": ""})
	}))
	defer server.Close()

	reader := NewProfileReader(NewChainClient(server.URL), NewIPFSClient(server.URL, server.URL))
	_, found, err := reader.Profile(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("absent profile must not error: %v", err)
	}
	if found {
		t.Fatalf("expected absent profile")
	}
}
