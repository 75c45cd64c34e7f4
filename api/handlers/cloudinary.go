package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// AttachmentStore is the uploader collaborator. Uploads happen client-side
// against a signed request; the chat core only ever asks for deletion.
type AttachmentStore interface {
	Destroy(ctx context.Context, url string) error
}

// CloudinaryHandler handles Cloudinary related requests
type CloudinaryHandler struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryHandler builds the handler from the CLOUDINARY_URL environment
func NewCloudinaryHandler() (*CloudinaryHandler, error) {
	cld, err := cloudinary.New()
	if err != nil {
		return nil, err
	}
	return &CloudinaryHandler{cld: cld}, nil
}

// GenerateSignature generates a signature for Cloudinary uploads
func (c *CloudinaryHandler) GenerateSignature(w http.ResponseWriter, r *http.Request) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	uploadPreset := os.Getenv("CLOUDINARY_UPLOAD_PRESET")
	apiSecret := os.Getenv("CLOUDINARY_API_SECRET")

	// Create the signature
	h := hmac.New(sha1.New, []byte(apiSecret))
	h.Write([]byte("timestamp=" + timestamp + "&upload_preset=" + uploadPreset))
	signature := hex.EncodeToString(h.Sum(nil))

	// Respond with the timestamp and signature
	response := map[string]string{
		"timestamp": timestamp,
		"signature": signature,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Destroy removes the asset behind a delivery URL
func (c *CloudinaryHandler) Destroy(ctx context.Context, url string) error {
	publicID, err := publicIDFromURL(url)
	if err != nil {
		return err
	}
	_, err = c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	return err
}

// publicIDFromURL extracts the asset public id from a cloudinary delivery
// URL: everything after the /upload/ segment, minus the version prefix and
// the file extension.
func publicIDFromURL(url string) (string, error) {
	_, after, found := strings.Cut(url, "/upload/")
	if !found {
		return "", fmt.Errorf("not a cloudinary delivery url: %s", url)
	}
	parts := strings.Split(after, "/")
	if len(parts) > 1 && strings.HasPrefix(parts[0], "v") {
		if _, err := strconv.Atoi(parts[0][1:]); err == nil {
			parts = parts[1:]
		}
	}
	publicID := strings.Join(parts, "/")
	if dot := strings.LastIndex(publicID, "."); dot > 0 {
		publicID = publicID[:dot]
	}
	if publicID == "" {
		return "", fmt.Errorf("could not derive public id from url: %s", url)
	}
	return publicID, nil
}
