package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"aiweb-backend-go/internal/cloud"
	"aiweb-backend-go/internal/ingest"
	"aiweb-backend-go/internal/models"
	"aiweb-backend-go/internal/services"

	"go.uber.org/zap"
)

const (
	chatSystemPrompt = "You are a helpful, friendly, and knowledgeable AI assistant. Provide clear, accurate, and helpful responses to user questions."
	codeSystemPrompt = "You are an expert software engineer and coding assistant. Help users with:\n" +
		"    - Writing clean, efficient code\n" +
		"    - Debugging and troubleshooting\n" +
		"    - Code reviews and optimization\n" +
		"    - Best practices and design patterns\n" +
		"    - Explaining complex programming concepts\n" +
		"    \n" +
		"    Always provide clear explanations and well-commented code examples."

	imageGeneratedMessage = "Image generated successfully"
)

var imageMediaTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
}

type ChatRequest struct {
	Message string `json:"message"`
}

type GenerateImageRequest struct {
	Prompt string `json:"prompt"`
}

// AnalysisResponse is cloud.Result plus the partial-result flag of the
// ingestion pipeline.
type AnalysisResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Partial  bool   `json:"partial,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	s.converse(w, r, models.SearchChat, "chat_request", chatSystemPrompt)
}

func (s *Server) CodeChat(w http.ResponseWriter, r *http.Request) {
	s.converse(w, r, models.SearchCode, "code_chat_request", codeSystemPrompt)
}

func (s *Server) converse(w http.ResponseWriter, r *http.Request, searchType, actionType, system string) {
	start := time.Now()
	user, _ := CurrentUser(r)
	client := clientInfo(r)
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		WriteError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if err := s.Audit.RecordAction(r.Context(), user.ID, actionType, map[string]interface{}{
		"message_length": utf8.RuneCountInString(req.Message),
	}, client); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result := s.Invoker.Invoke(r.Context(), req.Message, system, nil)
	s.recordSearch(r, user.ID, searchType, req.Message, resultText(result), time.Since(start), client)
	s.writeResult(w, r, result)
}

func (s *Server) GenerateImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user, _ := CurrentUser(r)
	client := clientInfo(r)
	var req GenerateImageRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		WriteError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if err := s.Audit.RecordAction(r.Context(), user.ID, "image_generation_request", map[string]interface{}{
		"prompt_length": utf8.RuneCountInString(req.Prompt),
	}, client); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result := s.Invoker.GenerateImage(r.Context(), req.Prompt)
	logged := result.Error
	if !result.Failed() {
		logged = imageGeneratedMessage
	}
	s.recordSearch(r, user.ID, models.SearchImageGen, req.Prompt, logged, time.Since(start), client)
	s.writeResult(w, r, result)
}

// DocumentAnalyze saves the upload to scratch, routes it through the
// ingestion dispatcher and removes it on every exit path.
func (s *Server) DocumentAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user, _ := CurrentUser(r)
	client := clientInfo(r)
	upload, ok := s.receiveUpload(w, r, "No file uploaded", s.documentAllowed)
	if !ok {
		return
	}
	defer upload.Remove()
	if err := s.recordUpload(r, user.ID, upload, "document", client); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	query := "Document: " + upload.Original
	analysis, err := s.Dispatcher.Analyze(r.Context(), upload.Path, upload.Original)
	if err != nil {
		s.recordSearch(r, user.ID, models.SearchDocument, query, services.PublicMessage(err), time.Since(start), client)
		s.writeServiceError(w, r, err)
		return
	}
	s.recordSearch(r, user.ID, models.SearchDocument, query, resultText(analysis.Result), time.Since(start), client)
	s.writeAnalysis(w, r, analysis)
}

// AnalyzeImage sends the image inline when the text model accepts images and
// falls back to the label/OCR/caption pipeline otherwise.
func (s *Server) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user, _ := CurrentUser(r)
	client := clientInfo(r)
	upload, ok := s.receiveUpload(w, r, "No image uploaded", s.imageAllowed)
	if !ok {
		return
	}
	defer upload.Remove()
	if err := s.recordUpload(r, user.ID, upload, "image", client); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	query := "Image: " + upload.Original
	data, err := os.ReadFile(upload.Path)
	if err != nil {
		s.writeServiceError(w, r, services.Internal(err, "Failed to read uploaded image"))
		return
	}
	var analysis *ingest.Analysis
	mediaType, inline := imageMediaTypes[services.Extension(upload.Original)]
	if inline && s.Invoker.SupportsImages() {
		result := s.Invoker.Invoke(r.Context(), ingest.ImagePrompt, ingest.ImageSystemPrompt, &cloud.Image{MediaType: mediaType, Data: data})
		analysis = &ingest.Analysis{Strategy: ingest.StrategyImage, Result: result}
	} else {
		analysis, err = s.Dispatcher.AnalyzeImage(r.Context(), upload.Original, data)
		if err != nil {
			s.recordSearch(r, user.ID, models.SearchImageAnalyze, query, services.PublicMessage(err), time.Since(start), client)
			s.writeServiceError(w, r, err)
			return
		}
	}
	s.recordSearch(r, user.ID, models.SearchImageAnalyze, query, resultText(analysis.Result), time.Since(start), client)
	s.writeAnalysis(w, r, analysis)
}

// receiveUpload enforces the size cap, reads the "file" part and saves it to
// the scratch folder. It writes the error response itself.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request, missing string, allowed func(ext string) error) (*services.Upload, bool) {
	if s.Config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Maximum upload size is %d MB", s.Config.MaxUploadBytes/(1024*1024)))
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, missing)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, missing)
		return nil, false
	}
	defer file.Close()
	if strings.TrimSpace(header.Filename) == "" {
		WriteError(w, http.StatusBadRequest, "No file selected")
		return nil, false
	}
	name := services.SanitizeFilename(header.Filename)
	if err := allowed(services.Extension(name)); err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	upload, err := services.SaveUpload(s.Config.UploadFolder, name, file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	upload.Original = name
	return upload, true
}

func (s *Server) documentAllowed(ext string) error {
	if err := ingest.CheckSupported(ext); err != nil {
		return err
	}
	if !s.extensionAllowed(ext) {
		return s.invalidFileType()
	}
	return nil
}

func (s *Server) imageAllowed(ext string) error {
	if !s.extensionAllowed(ext) || ingest.Classify(ext) != ingest.StrategyImage {
		return s.invalidFileType()
	}
	return nil
}

func (s *Server) extensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range s.Config.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

func (s *Server) invalidFileType() error {
	return services.NewError(services.KindUnsupported,
		"Invalid file type. Allowed types: "+strings.Join(s.Config.AllowedExtensions, ", "))
}

func (s *Server) recordUpload(r *http.Request, userID int64, upload *services.Upload, fileType string, client services.ClientInfo) error {
	return s.Audit.RecordAction(r.Context(), userID, "file_upload", map[string]interface{}{
		"filename":  upload.Original,
		"file_size": upload.Size,
		"file_type": fileType,
	}, client)
}

// recordSearch logs the exchange after the response is known. A failed write
// is only logged.
func (s *Server) recordSearch(r *http.Request, userID int64, searchType, query, response string, elapsed time.Duration, client services.ClientInfo) {
	if err := s.Audit.RecordSearch(r.Context(), userID, searchType, query, &response, elapsed, client); err != nil {
		s.requestLogger(r).Error("failed to record search", zap.String("search_type", searchType), zap.Error(err))
	}
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result cloud.Result) {
	if result.Failed() {
		s.requestLogger(r).Warn("model call failed", zap.String("error", result.Error))
		WriteJSON(w, http.StatusInternalServerError, result)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) writeAnalysis(w http.ResponseWriter, r *http.Request, analysis *ingest.Analysis) {
	resp := AnalysisResponse{
		Response: analysis.Result.Response,
		Error:    analysis.Result.Error,
		Strategy: analysis.Strategy,
		Partial:  analysis.Partial,
		Warning:  analysis.Warning,
	}
	if analysis.Result.Failed() {
		s.requestLogger(r).Warn("analysis failed", zap.String("strategy", analysis.Strategy), zap.String("error", analysis.Result.Error))
		WriteJSON(w, http.StatusInternalServerError, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func resultText(result cloud.Result) string {
	if result.Failed() {
		return result.Error
	}
	return result.Response
}
