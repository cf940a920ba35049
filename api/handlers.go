package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tenebris-tech/docxblank/blankpage"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/processor"
	"github.com/tenebris-tech/docxblank/queue"
	"github.com/tenebris-tech/docxblank/remediate"
	"github.com/tenebris-tech/docxblank/storage"
)

// HandleDetect classifies every page of an uploaded document
func HandleDetect(c *gin.Context, config *Config, deps *Deps) {
	inFile, _, ok := receiveDocument(c, config, "detect")
	if !ok {
		return
	}
	defer os.Remove(inFile)

	report, err := deps.Processor.Detect(c.Request.Context(), inFile)
	if err != nil {
		respondError(c, deps, err)
		return
	}
	c.JSON(http.StatusOK, reportResponse(report))
}

// HandleRemediate removes blank pages from an uploaded document and returns
// the result as a download. The optional "pages" field ("2,5-6") limits
// removal to those pages; without it every detected blank page is removed.
func HandleRemediate(c *gin.Context, config *Config, deps *Deps) {
	marked, ok := parsePagesField(c)
	if !ok {
		return
	}

	inFile, header, ok := receiveDocument(c, config, "input")
	if !ok {
		return
	}
	outFile := strings.TrimSuffix(inFile, filepath.Ext(inFile)) + remediate.DefaultOutputSuffix + ".docx"
	defer os.Remove(inFile)
	defer os.Remove(outFile)

	ctx := c.Request.Context()
	if marked == nil {
		report, err := deps.Processor.Detect(ctx, inFile)
		if err != nil {
			respondError(c, deps, err)
			return
		}
		marked = report.BlankPages()
	}

	result, err := deps.Processor.Remediate(ctx, inFile, marked, outFile)
	if err != nil {
		respondError(c, deps, err)
		return
	}

	if _, err := os.Stat(outFile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Remediation did not produce an output file"})
		return
	}

	c.Header("X-Remediation-State", string(result.State))
	c.Header("X-Processed-Pages", processor.FormatPages(result.ProcessedPages))
	c.Header("X-Remaining-Pages", processor.FormatPages(result.RemainingPages))
	c.FileAttachment(outFile, downloadName(header))
}

// HandleCreateJob stores an upload and queues its remediation
func HandleCreateJob(c *gin.Context, config *Config, deps *Deps) {
	if deps.Queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Background jobs are not enabled"})
		return
	}

	marked, ok := parsePagesField(c)
	if !ok {
		return
	}

	inFile, header, ok := receiveDocument(c, config, "job")
	if !ok {
		return
	}

	jobID := uuid.New().String()
	payload := &queue.RemediationPayload{
		JobID:       jobID,
		Filename:    sanitizeFilename(header.Filename),
		InputPath:   inFile,
		OutputPath:  strings.TrimSuffix(inFile, filepath.Ext(inFile)) + remediate.DefaultOutputSuffix + ".docx",
		MarkedPages: marked,
	}
	if methods := strings.TrimSpace(c.PostForm("methods")); methods != "" {
		for _, m := range strings.Split(methods, ",") {
			payload.Methods = append(payload.Methods, strings.TrimSpace(m))
		}
	}

	record := &storage.JobRecord{
		ID:          jobID,
		Filename:    payload.Filename,
		Status:      storage.JobQueued,
		MarkedPages: marked,
	}
	ctx := c.Request.Context()
	if err := deps.Store.SaveResult(ctx, record); err != nil {
		os.Remove(inFile)
		respondError(c, deps, err)
		return
	}

	if _, err := deps.Queue.EnqueueRemediation(ctx, payload); err != nil {
		os.Remove(inFile)
		record.ApplyResult(nil, err)
		if saveErr := deps.Store.SaveResult(ctx, record); saveErr != nil {
			deps.Logger.WithError(saveErr).WithField("job", jobID).Warn("Failed to record enqueue failure")
		}
		respondError(c, deps, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "status": storage.JobQueued})
}

// HandleJobStatus returns the stored state of a job
func HandleJobStatus(c *gin.Context, deps *Deps) {
	record, ok := lookupJob(c, deps)
	if !ok {
		return
	}
	// Server paths stay private
	record.OutputPath = ""
	c.JSON(http.StatusOK, record)
}

// HandleJobDownload returns the output document of a finished job
func HandleJobDownload(c *gin.Context, deps *Deps) {
	record, ok := lookupJob(c, deps)
	if !ok {
		return
	}
	if record.Status != storage.JobCompleted || record.OutputPath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Job has no output yet", "status": record.Status})
		return
	}
	if _, err := os.Stat(record.OutputPath); err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "Job output is no longer available"})
		return
	}

	name := strings.TrimSuffix(record.Filename, filepath.Ext(record.Filename)) + remediate.DefaultOutputSuffix + ".docx"
	c.FileAttachment(record.OutputPath, sanitizeFilename(name))
}

func lookupJob(c *gin.Context, deps *Deps) (*storage.JobRecord, bool) {
	record, err := deps.Store.GetResult(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return nil, false
	}
	if err != nil {
		respondError(c, deps, err)
		return nil, false
	}
	return record, true
}

// receiveDocument validates the "docx" upload and saves it under TempDir
func receiveDocument(c *gin.Context, config *Config, prefix string) (string, *multipart.FileHeader, bool) {
	file, header, err := c.Request.FormFile("docx")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No DOCX file provided"})
		return "", nil, false
	}
	defer file.Close()

	if err := validateDocxFile(file, header, config.MaxFileSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", nil, false
	}

	if err := ensureTempDir(config.TempDir); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create temp directory"})
		return "", nil, false
	}

	inFile := filepath.Join(config.TempDir, prefix+"_"+uuid.New().String()+".docx")
	out, err := os.Create(inFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create temp file"})
		return "", nil, false
	}

	_, err = out.ReadFrom(file)
	out.Close()
	if err != nil {
		os.Remove(inFile)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save input file"})
		return "", nil, false
	}

	return inFile, header, true
}

// parsePagesField reads the optional "pages" form field. A nil slice means
// the field was absent.
func parsePagesField(c *gin.Context) ([]int, bool) {
	spec := strings.TrimSpace(c.PostForm("pages"))
	if spec == "" {
		return nil, true
	}
	pages, err := processor.ParsePages(spec)
	if err == nil {
		err = processor.ValidatePages(pages, 0)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid pages: %v", err)})
		return nil, false
	}
	return pages, true
}

func respondError(c *gin.Context, deps *Deps, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.HasCode(err, apperrors.ErrorInvalidInput):
		status = http.StatusBadRequest
	case apperrors.HasCode(err, apperrors.ErrorEngineTimeout):
		status = http.StatusGatewayTimeout
	case apperrors.HasCode(err, apperrors.ErrorDocumentAccess):
		status = http.StatusUnprocessableEntity
	}

	if deps.Logger != nil {
		deps.Logger.WithError(err).WithField("status", status).Warn("Request failed")
	}

	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	body := gin.H{"error": msg}
	if code := apperrors.CodeOf(err); code != "" {
		body["code"] = code
	}
	c.JSON(status, body)
}

func reportResponse(report *blankpage.Report) gin.H {
	pages := make([]gin.H, 0, len(report.Pages))
	for _, p := range report.Pages {
		page := gin.H{
			"page":    p.PageNumber,
			"section": p.SectionIndex,
			"blank":   p.IsBlank,
			"reason":  p.Reason,
		}
		if p.HasHeaderFooter {
			page["headerFooter"] = true
		}
		if p.HasWatermark {
			page["watermark"] = true
		}
		if p.IsProtected {
			page["protected"] = true
		}
		if p.HasSectionBreak {
			page["sectionBreak"] = true
		}
		pages = append(pages, page)
	}

	sections := make([]gin.H, 0, len(report.Sections))
	for _, s := range report.SectionSummaries() {
		sections = append(sections, gin.H{
			"index":      s.Section.Index,
			"breakType":  s.Section.BreakType.String(),
			"startPage":  s.Section.StartPage,
			"endPage":    s.Section.EndPage,
			"blankPages": s.BlankPages,
		})
	}

	return gin.H{
		"pageCount":         report.PageCount,
		"blankPageCount":    report.BlankPageCount,
		"blankPages":        report.BlankPages(),
		"candidateSections": report.CandidateSections,
		"pages":             pages,
		"sections":          sections,
	}
}

// ensureTempDir creates the temp directory if it doesn't exist
func ensureTempDir(tempDir string) error {
	return os.MkdirAll(tempDir, DefaultFilePermissions)
}

// sanitizeFilename removes path traversal attempts and dangerous characters
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.TrimSpace(filepath.Base(filename))

	if filename == "" || filename == "." {
		filename = "document.docx"
	}
	return filename
}

func downloadName(header *multipart.FileHeader) string {
	name := "document.docx"
	if header != nil && header.Filename != "" {
		name = header.Filename
	}
	name = sanitizeFilename(name)
	return strings.TrimSuffix(name, filepath.Ext(name)) + remediate.DefaultOutputSuffix + ".docx"
}

// validateDocxFile checks the size limit and the zip signature
func validateDocxFile(file multipart.File, header *multipart.FileHeader, maxSize int64) error {
	if header.Size > maxSize {
		return fmt.Errorf("file size %d exceeds maximum allowed %d bytes", header.Size, maxSize)
	}

	buffer := make([]byte, 4)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("failed to read file header: %v", err)
	}
	if n < 4 || string(buffer) != "PK\x03\x04" {
		return fmt.Errorf("invalid DOCX file: not a zip package")
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset file position: %v", err)
	}
	return nil
}
