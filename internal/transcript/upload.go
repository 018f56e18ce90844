package transcript

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// blobClient is the subset of *azblob.Client used for uploads.
type blobClient interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// BlobUploader copies transcript files to an Azure Storage container.
type BlobUploader struct {
	client    blobClient
	container string
	prefix    string
}

// NewBlobUploader authenticates with DefaultAzureCredential and targets
// container in the storage account at accountURL. Blob names are prefixed
// with prefix when it is not empty.
func NewBlobUploader(accountURL, container, prefix string) (*BlobUploader, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure credential: %w", err)
	}
	return newBlobUploaderWithCredential(accountURL, container, prefix, cred)
}

func newBlobUploaderWithCredential(accountURL, container, prefix string, cred azcore.TokenCredential) (*BlobUploader, error) {
	if accountURL == "" || container == "" {
		return nil, fmt.Errorf("upload needs both account_url and container")
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	return &BlobUploader{client: client, container: container, prefix: prefix}, nil
}

// BlobName returns the name a local transcript file is uploaded under.
func (u *BlobUploader) BlobName(file string) string {
	name := filepath.Base(file)
	if u.prefix == "" {
		return name
	}
	return path.Join(strings.Trim(u.prefix, "/"), name)
}

// Upload sends the file at file and returns the blob name.
func (u *BlobUploader) Upload(ctx context.Context, file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}

	contentType := "application/json"
	if strings.HasSuffix(file, CompressedExt) {
		contentType = "application/zstd"
	}

	name := u.BlobName(file)
	_, err = u.client.UploadBuffer(ctx, u.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to container %s: %w", name, u.container, err)
	}
	return name, nil
}
