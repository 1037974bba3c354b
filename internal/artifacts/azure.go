package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureConfig addresses a blob container with a shared key.
type AzureConfig struct {
	Account   string
	Key       string
	Container string
	Prefix    string
	// ServiceURL overrides https://<account>.blob.core.windows.net/ (Azurite).
	ServiceURL string
	// URLExpiry bounds SAS URLs. Defaults to 15 minutes.
	URLExpiry time.Duration
}

// blobOps is the slice of azblob the store needs.
type blobOps interface {
	upload(ctx context.Context, name string, data []byte, mime string) error
	download(ctx context.Context, name string) ([]byte, string, error)
	exists(ctx context.Context, name string) error
	remove(ctx context.Context, name string) error
	sasURL(name string, expiry time.Time) (string, error)
}

// AzureStore keeps artifacts in Azure Blob Storage and hands out read-only
// SAS URLs.
type AzureStore struct {
	blobs  blobOps
	prefix string
	expiry time.Duration
	now    func() time.Time
}

func NewAzureStore(c AzureConfig) (*AzureStore, error) {
	if c.Account == "" || c.Key == "" || c.Container == "" {
		return nil, errors.New("azure: account, key and container are required")
	}
	credential, err := azblob.NewSharedKeyCredential(c.Account, c.Key)
	if err != nil {
		return nil, fmt.Errorf("build shared key credential: %w", err)
	}
	url := c.ServiceURL
	if url == "" {
		url = fmt.Sprintf("https://%s.blob.core.windows.net/", c.Account)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(url, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return newAzureStore(&azblobOps{client: client, container: c.Container}, c.Prefix, c.URLExpiry), nil
}

func newAzureStore(ops blobOps, prefix string, expiry time.Duration) *AzureStore {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &AzureStore{blobs: ops, prefix: prefix, expiry: expiry, now: time.Now}
}

func (a *AzureStore) blobName(key string) string {
	if a.prefix == "" {
		return key
	}
	return path.Join(a.prefix, key)
}

func (a *AzureStore) Put(ctx context.Context, data []byte, mime string) (string, error) {
	key := NewKey()
	if err := a.blobs.upload(ctx, a.blobName(key), data, mime); err != nil {
		return "", fmt.Errorf("azure upload: %w", err)
	}
	return key, nil
}

func (a *AzureStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	data, mime, err := a.blobs.download(ctx, a.blobName(key))
	if err != nil {
		return nil, "", mapAzureError("azure download", err)
	}
	return data, mime, nil
}

func (a *AzureStore) URL(ctx context.Context, key string) (string, error) {
	name := a.blobName(key)
	if err := a.blobs.exists(ctx, name); err != nil {
		return "", mapAzureError("azure properties", err)
	}
	u, err := a.blobs.sasURL(name, a.now().Add(a.expiry))
	if err != nil {
		return "", fmt.Errorf("azure sas: %w", err)
	}
	return u, nil
}

func (a *AzureStore) Delete(ctx context.Context, key string) error {
	err := a.blobs.remove(ctx, a.blobName(key))
	if err == nil {
		return nil
	}
	if mapped := mapAzureError("azure delete", err); errors.Is(mapped, ErrNotFound) {
		return nil
	}
	return fmt.Errorf("azure delete: %w", err)
}

func mapAzureError(op string, err error) error {
	if errors.Is(err, ErrNotFound) || bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type azblobOps struct {
	client    *azblob.Client
	container string
}

func (o *azblobOps) upload(ctx context.Context, name string, data []byte, mime string) error {
	_, err := o.client.UploadBuffer(ctx, o.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &mime},
	})
	return err
}

func (o *azblobOps) download(ctx context.Context, name string) ([]byte, string, error) {
	resp, err := o.client.DownloadStream(ctx, o.container, name, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mime := ""
	if resp.ContentType != nil {
		mime = *resp.ContentType
	}
	return data, mime, nil
}

func (o *azblobOps) blob(name string) *blob.Client {
	return o.client.ServiceClient().NewContainerClient(o.container).NewBlobClient(name)
}

func (o *azblobOps) exists(ctx context.Context, name string) error {
	_, err := o.blob(name).GetProperties(ctx, nil)
	return err
}

func (o *azblobOps) remove(ctx context.Context, name string) error {
	_, err := o.client.DeleteBlob(ctx, o.container, name, nil)
	return err
}

func (o *azblobOps) sasURL(name string, expiry time.Time) (string, error) {
	return o.blob(name).GetSASURL(sas.BlobPermissions{Read: true}, expiry, nil)
}
