package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"plainspeak-backend/models"
	"plainspeak-backend/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler handles HTTP requests for document operations
type DocumentHandler struct {
	documentService *service.DocumentService
	maxFileSize     int64
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		maxFileSize:     10 * 1024 * 1024, // 10MB
	}
}

// UploadDocument handles POST /upload
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "File is required",
			},
		})
		return
	}

	filename := strings.ToLower(fileHeader.Filename)
	if !strings.HasSuffix(filename, ".pdf") && !strings.HasSuffix(filename, ".txt") {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE_TYPE",
				"message": "Only PDF and TXT files are supported",
			},
		})
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": "File size exceeds maximum of 10MB",
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_READ_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	record, err := h.documentService.ProcessUpload(c.Request.Context(), content, fileHeader.Filename)
	if err != nil {
		log.Printf("Error processing upload %q: %v", fileHeader.Filename, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, documentResponse(record))
}

// GetDocument handles GET /document/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	record, err := h.documentService.GetDocument(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, documentResponse(record))
}

// AnalyzeDocument handles POST /analyze
func (h *DocumentHandler) AnalyzeDocument(c *gin.Context) {
	var req models.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	result, err := h.documentService.AnalyzeDocument(c.Request.Context(), req.DocumentID, req.Text)
	if err != nil {
		log.Printf("Error analyzing text for document %s: %v", req.DocumentID, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// writeError maps service errors onto the response envelope. Gateway
// messages carry the underlying cause, never a stack trace.
func (h *DocumentHandler) writeError(c *gin.Context, err error) {
	var gatewayErr *models.GatewayError
	switch {
	case errors.Is(err, models.ErrUnsupportedFileType):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE_TYPE",
				"message": err.Error(),
			},
		})
	case errors.Is(err, models.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Document not found",
			},
		})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "GATEWAY_ERROR",
				"message": err.Error(),
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": err.Error(),
			},
		})
	}
}

func documentResponse(record *models.DocumentRecord) models.DocumentResponse {
	return models.DocumentResponse{
		Metadata: models.DocumentMetadata{
			ID:        record.ID,
			Filename:  record.Filename,
			MediaType: record.MediaType,
		},
		Segments:     record.Segments,
		Explanations: record.Explanations,
	}
}
