package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/service"
)

type analyzeTextRequest struct {
	Text        string   `json:"text"`
	Language    string   `json:"language"`
	MinScore    *float64 `json:"min_score"`
	EntityTypes []string `json:"entity_types"`
}

type anonymizeTextRequest struct {
	Text           string         `json:"text"`
	Operator       string         `json:"operator"`
	OperatorParams map[string]any `json:"operator_params"`
	Language       string         `json:"language"`
	MinScore       *float64       `json:"min_score"`
	EntityTypes    []string       `json:"entity_types"`
}

type anonymizeStructuredRequest struct {
	Data           any            `json:"data"`
	Operator       string         `json:"operator"`
	OperatorParams map[string]any `json:"operator_params"`
	Language       string         `json:"language"`
	EntityTypes    []string       `json:"entity_types"`
}

type pseudonymizeTextRequest struct {
	Text         string         `json:"text"`
	Method       string         `json:"method"`
	MethodParams map[string]any `json:"method_params"`
	Language     string         `json:"language"`
	MinScore     *float64       `json:"min_score"`
	EntityTypes  []string       `json:"entity_types"`
}

type pseudonymizeStructuredRequest struct {
	Data         any            `json:"data"`
	Method       string         `json:"method"`
	MethodParams map[string]any `json:"method_params"`
	Language     string         `json:"language"`
	EntityTypes  []string       `json:"entity_types"`
}

type textMeta struct {
	Operator domain.Operator `json:"operator,omitempty"`
	Method   domain.MethodID `json:"method,omitempty"`
	Language string          `json:"language"`
	MinScore float64         `json:"min_score"`
	Entities domain.Stats    `json:"entities"`
}

type structuredMeta struct {
	Operator domain.Operator `json:"operator,omitempty"`
	Method   domain.MethodID `json:"method,omitempty"`
	Language string          `json:"language"`
	Fields   domain.Stats    `json:"fields"`
}

type analyzeTextResponse struct {
	Entities []domain.Entity `json:"entities"`
	Meta     textMeta        `json:"meta"`
}

type anonymizeTextResponse struct {
	AnonymizedText   string          `json:"anonymized_text"`
	DetectedEntities []domain.Entity `json:"detected_entities"`
	Meta             textMeta        `json:"meta"`
}

type anonymizeStructuredResponse struct {
	AnonymizedData domain.StructuredData `json:"anonymized_data"`
	DetectedFields map[string]string     `json:"detected_fields"`
	Meta           structuredMeta        `json:"meta"`
}

type pseudonymizeTextResponse struct {
	PseudonymizedText string          `json:"pseudonymized_text"`
	DetectedEntities  []domain.Entity `json:"detected_entities"`
	Meta              textMeta        `json:"meta"`
}

type pseudonymizeStructuredResponse struct {
	PseudonymizedData domain.StructuredData `json:"pseudonymized_data"`
	DetectedFields    map[string]string     `json:"detected_fields"`
	Meta              structuredMeta        `json:"meta"`
}

// decodeBody reads a bounded JSON body into out.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	limit := s.config.Server.MaxBodyBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := decoder.Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.NewInvalidInputError("Request body too large")
		case errors.Is(err, io.EOF):
			return domain.NewInvalidInputError("Request body cannot be empty")
		default:
			return domain.NewInvalidInputError("Invalid JSON body: " + err.Error())
		}
	}
	return nil
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	if language == "" {
		language = s.config.Defaults.Language
	}
	if s.deps.Entities == nil {
		writeJSON(w, http.StatusOK, map[string]any{"language": language, "entities": []string{}})
		return
	}

	entities, err := s.deps.Entities.SupportedEntities(r.Context(), language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"language": language, "entities": entities})
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req analyzeTextRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.services.Analyze.AnalyzeText(r.Context(), service.AnalyzeRequest{
		Text:        req.Text,
		Language:    req.Language,
		MinScore:    req.MinScore,
		EntityTypes: req.EntityTypes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeTextResponse{
		Entities: result.Entities,
		Meta: textMeta{
			Language: result.Language,
			MinScore: result.MinScore,
			Entities: result.Stats,
		},
	})
}

func (s *Server) handleAnonymizeText(w http.ResponseWriter, r *http.Request) {
	var req anonymizeTextRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, meta, err := s.services.TextAnonymization.Anonymize(r.Context(), service.AnonymizeTextRequest{
		Text:           req.Text,
		Operator:       req.Operator,
		OperatorParams: req.OperatorParams,
		Language:       req.Language,
		MinScore:       req.MinScore,
		EntityTypes:    req.EntityTypes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, anonymizeTextResponse{
		AnonymizedText:   result.Text,
		DetectedEntities: result.Entities,
		Meta: textMeta{
			Operator: meta.Operator,
			Language: meta.Language,
			MinScore: meta.MinScore,
			Entities: result.Stats,
		},
	})
}

func (s *Server) handleAnonymizeStructured(w http.ResponseWriter, r *http.Request) {
	var req anonymizeStructuredRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := domain.ParseStructuredData(req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, meta, err := s.services.StructuredAnonymization.Anonymize(r.Context(), service.AnonymizeStructuredRequest{
		Data:           data,
		Operator:       req.Operator,
		OperatorParams: req.OperatorParams,
		Language:       req.Language,
		EntityTypes:    req.EntityTypes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, anonymizeStructuredResponse{
		AnonymizedData: result.Data,
		DetectedFields: result.FieldMapping(),
		Meta: structuredMeta{
			Operator: meta.Operator,
			Language: meta.Language,
			Fields:   result.Stats,
		},
	})
}

func (s *Server) handlePseudonymizeText(w http.ResponseWriter, r *http.Request) {
	var req pseudonymizeTextRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, meta, err := s.services.TextPseudonymization.Pseudonymize(r.Context(), service.PseudonymizeTextRequest{
		Text:         req.Text,
		Method:       req.Method,
		MethodParams: req.MethodParams,
		Language:     req.Language,
		MinScore:     req.MinScore,
		EntityTypes:  req.EntityTypes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pseudonymizeTextResponse{
		PseudonymizedText: result.Text,
		DetectedEntities:  result.Entities,
		Meta: textMeta{
			Method:   meta.Method,
			Language: meta.Language,
			MinScore: meta.MinScore,
			Entities: result.Stats,
		},
	})
}

func (s *Server) handlePseudonymizeStructured(w http.ResponseWriter, r *http.Request) {
	var req pseudonymizeStructuredRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := domain.ParseStructuredData(req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, meta, err := s.services.StructuredPseudonymization.Pseudonymize(r.Context(), service.PseudonymizeStructuredRequest{
		Data:         data,
		Method:       req.Method,
		MethodParams: req.MethodParams,
		Language:     req.Language,
		EntityTypes:  req.EntityTypes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pseudonymizeStructuredResponse{
		PseudonymizedData: result.Data,
		DetectedFields:    result.FieldMapping(),
		Meta: structuredMeta{
			Method:   meta.Method,
			Language: meta.Language,
			Fields:   result.Stats,
		},
	})
}
