package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/conversation"
	"conversation-analyzer/pkg/correlation"
	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/metrics"
)

// AnalyzeConversationRequest is the body of POST /api/v1/conversations/analyze.
// A bare JSON array of turns is accepted as well.
type AnalyzeConversationRequest struct {
	ConversationID string               `json:"conversation_id,omitempty"`
	Turns          *[]conversation.Turn `json:"turns"`
}

// AnalyzeLineRequest is the body of POST /api/v1/lines/analyze
type AnalyzeLineRequest struct {
	Line *string `json:"line"`
}

// handleAnalyzeConversation aggregates a conversation and returns its report envelope
func (s *Server) handleAnalyzeConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}

	var req AnalyzeConversationRequest
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var turns []conversation.Turn
		if err := json.Unmarshal(trimmed, &turns); err != nil {
			s.ErrorResponse(w, r, errors.NewInvalidTranscript(err.Error()))
			return
		}
		req.Turns = &turns
	} else if err := json.Unmarshal(trimmed, &req); err != nil {
		s.ErrorResponse(w, r, errors.NewInvalidTranscript(err.Error()))
		return
	}

	if req.Turns == nil {
		s.ErrorResponse(w, r, errors.NewInvalidTranscript("turns must be an array"))
		return
	}

	envelope := s.dispatcher.Analyze(r.Context(), req.ConversationID, *req.Turns)

	correlation.Logger(r.Context(), s.logger).WithFields(logrus.Fields{
		"endpoint":        "/api/v1/conversations/analyze",
		"conversation_id": envelope.ConversationID,
		"turns":           envelope.TurnCount,
	}).Debug("Conversation analyzed")

	writeJSON(w, http.StatusOK, envelope)
}

// handleAnalyzeLine analyzes a single transcript line
func (s *Server) handleAnalyzeLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}

	var req AnalyzeLineRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.ErrorResponse(w, r, errors.NewInvalidTranscript(err.Error()))
		return
	}
	if req.Line == nil {
		s.ErrorResponse(w, r, errors.NewInvalidTranscript("line is required"))
		return
	}

	start := time.Now()
	result := s.analyzer.AnalyzeLine(*req.Line)
	metrics.ObserveAnalysis("line", time.Since(start))

	writeJSON(w, http.StatusOK, result)
}

// handlePatterns lists the configured categories and their sizes
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.analyzer.Patterns()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories":       cfg.Describe(),
		"match_timeout_ms": cfg.MatchTimeout().Milliseconds(),
	})
}

// handleUnknownRoute answers API paths that match no endpoint
func (s *Server) handleUnknownRoute(w http.ResponseWriter, r *http.Request) {
	s.ErrorResponse(w, r, errors.NewNotFound("no API endpoint at "+r.URL.Path, map[string]interface{}{
		"method": r.Method,
	}))
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	reader := io.Reader(r.Body)
	if s.config.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.NewInvalidTranscript(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, errors.NewInvalidTranscript(err.Error())
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
