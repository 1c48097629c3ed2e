package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/skypro1111/meetscribe/internal/audio"
)

type transcriptionResponse struct {
	Text              string  `json:"text"`
	RecommendedWaitMs int64   `json:"recommendedWaitMs"`
	Language          string  `json:"language"`
	Duration          float64 `json:"duration"`
}

type stub struct {
	text              string
	recommendedWaitMs int64
	failEvery         int64
	delay             time.Duration

	requests atomic.Int64
}

func (s *stub) transcribeHandler(w http.ResponseWriter, r *http.Request) {
	n := s.requests.Add(1)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("session_id")
	segment := r.FormValue("segment_number")
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	duration, err := audio.GetWAVDuration(data)
	if err != nil {
		log.Printf("❌ Invalid WAV payload for segment %s: %v", segment, err)
		http.Error(w, fmt.Sprintf("invalid audio: %v", err), http.StatusBadRequest)
		return
	}

	log.Printf("🎤 TRANSCRIPTION REQUEST #%d", n)
	log.Printf("    Session: %s", sessionID)
	log.Printf("    Segment: %s", segment)
	log.Printf("    Filename: %s (%d bytes, %s)", header.Filename, len(data), duration)
	log.Printf("    Language: %s", language)

	if s.failEvery > 0 && n%s.failEvery == 0 {
		log.Printf("💥 Simulated failure for request #%d", n)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":             "simulated outage",
			"recommendedWaitMs": s.recommendedWaitMs,
		})
		return
	}

	// Simulate processing time
	time.Sleep(s.delay)

	response := transcriptionResponse{
		Text:              fmt.Sprintf("%s (segment %s, %.1fs)", s.text, segment, duration.Seconds()),
		RecommendedWaitMs: s.recommendedWaitMs,
		Language:          language,
		Duration:          duration.Seconds(),
	}
	if s.text == "" {
		response.Text = ""
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ TRANSCRIPTION RESPONSE SENT: '%s'", response.Text)
}

func main() {
	port := flag.Int("port", 9000, "Port to listen on")
	text := flag.String("text", "This is a test transcription", "Text returned for every segment (empty drops segments)")
	wait := flag.Int64("recommended-wait-ms", 15000, "recommendedWaitMs returned with each response")
	failEvery := flag.Int64("fail-every", 0, "Answer every Nth request with 503 (0 disables)")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	s := &stub{
		text:              *text,
		recommendedWaitMs: *wait,
		failEvery:         *failEvery,
		delay:             *delay,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcribe", s.transcribeHandler)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("🚀 Stub transcription server starting on port %s", addr)
	log.Printf("📡 Endpoint: http://localhost%s/transcribe", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
