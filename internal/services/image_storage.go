package services

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageStorageService handles storing and retrieving scanned card images
type ImageStorageService struct {
	storageDir string
}

// NewImageStorageService creates a new image storage service rooted at storageDir
func NewImageStorageService(storageDir string) *ImageStorageService {
	if storageDir == "" {
		storageDir = "./data/scanned_images"
	}

	// Ensure the storage directory exists
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		// Log error but don't fail - will fail on actual writes
		log.Printf("Warning: could not create scanned images directory: %v", err)
	}

	return &ImageStorageService{
		storageDir: storageDir,
	}
}

// SaveImage saves image data to disk and returns the filename. The extension
// follows the sniffed content type.
func (s *ImageStorageService) SaveImage(imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	ext := ".jpg"
	switch http.DetectContentType(imageData) {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	case "image/jpeg":
	default:
		return "", fmt.Errorf("unsupported image type")
	}

	// Generate a unique filename
	filename := uuid.New().String() + ext
	filePath := filepath.Join(s.storageDir, filename)

	if err := os.WriteFile(filePath, imageData, 0o644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	return filename, nil
}

// SaveBase64Image decodes a base64 payload, optionally a data URL, and saves it
func (s *ImageStorageService) SaveBase64Image(encoded string) (string, error) {
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image: %w", err)
	}
	return s.SaveImage(data)
}

// GetStorageDir returns the storage directory path
func (s *ImageStorageService) GetStorageDir() string {
	return s.storageDir
}
