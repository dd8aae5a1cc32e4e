package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPathPrefix = "gs://"

// getGoogleClient initializes a Google Cloud Storage client.
// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// SaveAuditFile stores an uploaded audit file and returns the storage path the
// AuditLog should persist. With GCS_BUCKET set the file goes to GCS and the
// returned path is "gs://<bucket>/<object>"; otherwise it is written under the
// local uploads directory (UPLOAD_DIR, default "uploads").
func SaveAuditFile(ctx context.Context, objectName string, src io.Reader) (string, error) {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName != "" {
		client, err := getGoogleClient(ctx)
		if err != nil {
			return "", err
		}
		defer client.Close()

		w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
		if _, err := io.Copy(w, src); err != nil {
			w.Close()
			return "", err
		}
		if err := w.Close(); err != nil {
			return "", err
		}
		return gcsPathPrefix + bucketName + "/" + objectName, nil
	}

	dir := os.Getenv("UPLOAD_DIR")
	if dir == "" {
		dir = "uploads"
	}
	dest := filepath.Join(dir, objectName)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return "", err
	}
	return dest, nil
}

// OpenAuditFile opens a stored audit file by the path recorded on the AuditLog.
func OpenAuditFile(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, gcsPathPrefix) {
		rest := strings.TrimPrefix(path, gcsPathPrefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid gcs path: %s", path)
		}
		client, err := getGoogleClient(ctx)
		if err != nil {
			return nil, err
		}
		r, err := client.Bucket(parts[0]).Object(parts[1]).NewReader(ctx)
		if err != nil {
			client.Close()
			return nil, err
		}
		return &gcsFileReader{ReadCloser: r, client: client}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("stored audit file does not exist")
		}
		return nil, err
	}
	return f, nil
}

// gcsFileReader closes the storage client together with the object reader.
type gcsFileReader struct {
	io.ReadCloser
	client *storage.Client
}

func (r *gcsFileReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}
