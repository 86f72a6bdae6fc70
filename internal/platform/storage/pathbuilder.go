package storage

import (
	"fmt"
	"strings"
	"time"
)

// TaxDocumentPath composes the object key for an uploaded tax document. Keys
// are namespaced per user so listing a shopper's documents is a prefix scan.
func TaxDocumentPath(userID, fileName string, uploadedAt time.Time) (string, error) {
	user, err := validateSegment("userID", userID)
	if err != nil {
		return "", err
	}
	name, err := validateFileName(fileName)
	if err != nil {
		return "", err
	}
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	return fmt.Sprintf("tax-documents/%s/%s-%s", user, uploadedAt.UTC().Format("20060102T150405"), name), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
