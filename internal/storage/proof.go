package storage

import (
	"fmt"

	"keyvault-glow/internal/model"

	"github.com/gabriel-vasile/mimetype"
)

// MaxProofSize is the largest accepted evidence file.
const MaxProofSize = 10 << 20

var allowedProofTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// DetectProof sniffs the file content, rejects anything that is not an image
// or PDF and returns the file with its detected content type.
func DetectProof(file model.ProofFile) (model.ProofFile, error) {
	if len(file.Data) == 0 {
		return file, model.NewFieldError("proofs", fmt.Sprintf("file %s is empty", file.Name))
	}
	if len(file.Data) > MaxProofSize {
		return file, model.NewFieldError("proofs", fmt.Sprintf("file %s exceeds %d MB", file.Name, MaxProofSize>>20))
	}

	detected := mimetype.Detect(file.Data)
	if _, ok := allowedProofTypes[detected.String()]; !ok {
		return file, model.NewFieldError("proofs", fmt.Sprintf("file %s has unsupported type %s", file.Name, detected.String()))
	}
	file.ContentType = detected.String()
	return file, nil
}

// ExtensionFor returns the canonical extension for an accepted content type.
func ExtensionFor(contentType string) string {
	return allowedProofTypes[contentType]
}
