package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/credential"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository/memory"
)

type campaignFixture struct {
	store       *memory.Store
	blobs       *recordingStorage
	attachments AttachmentService
	svc         CampaignService
}

func newCampaignFixture(t *testing.T) *campaignFixture {
	t.Helper()
	f := &campaignFixture{store: memory.New(), blobs: newRecordingStorage()}
	f.attachments = NewAttachmentService(f.store.Attachments(domain.KindCampaign), f.blobs, apiResolver(), testOptions(), nil, zap.NewNop())
	f.svc = NewCampaignService(f.store.Campaigns(), f.attachments, testCipher(t), nil, zap.NewNop())
	return f
}

func sampleCampaign() CampaignInput {
	return CampaignInput{
		Name:     "Spring launch",
		Subject:  "Hello",
		Body:     "Body text",
		Email:    "sender@example.com",
		Password: "app-password",
		Mailbox:  domain.Mailbox{Provider: "Gmail"},
	}
}

func TestCampaignService_CreateEncryptsAndDefaults(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)

	c, files, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), []FileSource{textFile("notes.txt", "abc")})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, c.ID, files[0].ParentID)

	stored, err := f.store.Campaigns().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, credential.IsEncrypted(stored.Password))
	assert.NotEqual(t, "app-password", stored.Password)

	assert.Equal(t, "gmail", stored.Mailbox.Provider)
	assert.Equal(t, "smtp.gmail.com", stored.Mailbox.SMTPHost)
	assert.Equal(t, 587, stored.Mailbox.SMTPPort)
	assert.Equal(t, "imap.gmail.com", stored.Mailbox.IMAPHost)
	assert.Equal(t, 993, stored.Mailbox.IMAPPort)

	plain, err := f.svc.RevealPassword(ctx, "owner-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "app-password", plain)
}

func TestCampaignService_CreateValidation(t *testing.T) {
	f := newCampaignFixture(t)

	in := sampleCampaign()
	in.Email = "not-an-address"
	_, _, err := f.svc.Create(context.Background(), "owner-1", in, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = sampleCampaign()
	in.Name = "  "
	_, _, err = f.svc.Create(context.Background(), "owner-1", in, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCampaignService_InvalidFileFailsBeforeCreate(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)

	files := []FileSource{
		textFile("ok.txt", "abc"),
		{Filename: "tool.exe", ContentType: "application/x-msdownload", Reader: bytes.NewReader([]byte{0x00, 0x9c, 0x13, 0x37, 0x00})},
	}
	_, _, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), files)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)

	list, err := f.svc.List(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, f.blobs.putCount())
}

func TestCampaignService_StorageFailureRollsBackCampaign(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)
	f.blobs.failPut = errBoom

	_, _, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), []FileSource{textFile("notes.txt", "abc")})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	list, err := f.svc.List(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCampaignService_UpdateKeepsPasswordWhenEmpty(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)

	c, _, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), nil)
	require.NoError(t, err)
	original := c.Password

	in := sampleCampaign()
	in.Password = ""
	in.Subject = "Updated"
	in.Mailbox = domain.Mailbox{Provider: "custom", SMTPHost: "mail.example.com", SMTPPort: 2525}
	updated, err := f.svc.Update(ctx, "owner-1", c.ID, in)
	require.NoError(t, err)
	assert.Equal(t, original, updated.Password)
	assert.Equal(t, "Updated", updated.Subject)
	assert.Equal(t, "mail.example.com", updated.Mailbox.SMTPHost)
	assert.Empty(t, updated.Mailbox.IMAPHost, "unknown providers get no defaults")
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)

	in.Password = "rotated"
	updated, err = f.svc.Update(ctx, "owner-1", c.ID, in)
	require.NoError(t, err)
	assert.NotEqual(t, original, updated.Password)

	plain, err := f.svc.RevealPassword(ctx, "owner-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", plain)
}

func TestCampaignService_ForeignOwnerIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)

	c, _, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), nil)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "owner-2", c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Update(ctx, "owner-2", c.ID, sampleCampaign())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, "owner-2", c.ID), ErrNotFound)
	_, err = f.svc.RevealPassword(ctx, "owner-2", c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Get(ctx, "owner-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)

	c, files, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), []FileSource{
		textFile("a.txt", "a"),
		textFile("b.txt", "b"),
		textFile("c.txt", "c"),
	})
	require.NoError(t, err)
	require.Len(t, files, 3)
	f.blobs.failDel[files[0].BlobKey] = true

	require.NoError(t, f.svc.Delete(ctx, "owner-1", c.ID))

	_, err = f.svc.Get(ctx, "owner-1", c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	rows, err := f.attachments.List(ctx, c.ID, domain.AttachmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []string{files[0].BlobKey}, f.blobs.keys(), "only the failed blob delete is left behind")
}

func TestCampaignService_RevealWithWrongKey(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)

	c, _, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), nil)
	require.NoError(t, err)

	other, err := credential.NewCipher("a-completely-different-secret")
	require.NoError(t, err)
	rotated := NewCampaignService(f.store.Campaigns(), f.attachments, other, nil, nil)

	_, err = rotated.RevealPassword(ctx, "owner-1", c.ID)
	assert.ErrorIs(t, err, ErrDecryptionUnavailable)
}

func TestCampaignService_ResaveDoesNotDoubleEncrypt(t *testing.T) {
	ctx := context.Background()
	f := newCampaignFixture(t)

	c, _, err := f.svc.Create(ctx, "owner-1", sampleCampaign(), nil)
	require.NoError(t, err)

	in := sampleCampaign()
	in.Password = c.Password // a client echoing the stored ciphertext back
	updated, err := f.svc.Update(ctx, "owner-1", c.ID, in)
	require.NoError(t, err)
	assert.Equal(t, c.Password, updated.Password)

	plain, err := f.svc.RevealPassword(ctx, "owner-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "app-password", plain)
}
