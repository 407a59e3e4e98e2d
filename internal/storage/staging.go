package storage

import (
	"context"
	"fmt"
	"path"
	"sync"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const defaultUploadConcurrency = 3

// StoredObject is an uploaded file.
type StoredObject struct {
	Key string
	URL string
}

// Staging uploads a group of files as a unit: either every file is stored or
// none is left behind.
type Staging struct {
	store       ObjectStore
	prefix      string
	concurrency int
	logger      zerolog.Logger
}

// NewStaging creates a staging uploader writing under prefix.
func NewStaging(store ObjectStore, prefix string, logger zerolog.Logger) *Staging {
	return &Staging{
		store:       store,
		prefix:      prefix,
		concurrency: defaultUploadConcurrency,
		logger:      logger.With().Str("component", "proof-staging").Logger(),
	}
}

// UploadAll stores every file under prefix/owner/. If any upload fails the
// already stored files are deleted and the error names the failing file.
func (s *Staging) UploadAll(ctx context.Context, owner uuid.UUID, files []model.ProofFile) ([]StoredObject, error) {
	stored := make([]StoredObject, len(files))
	done := make([]bool, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, file := range files {
		g.Go(func() error {
			key := path.Join(s.prefix, owner.String(), fmt.Sprintf("%d-%s%s", i+1, uuid.NewString(), ExtensionFor(file.ContentType)))
			url, err := s.store.Put(gctx, key, file.ContentType, file.Data)
			if err != nil {
				return model.WrapDomainError(
					model.ErrCodeProofUploadFailed,
					err,
					fmt.Sprintf("failed to upload proof file %s", file.Name),
				)
			}
			mu.Lock()
			stored[i] = StoredObject{Key: key, URL: url}
			done[i] = true
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var uploaded []StoredObject
		for i, ok := range done {
			if ok {
				uploaded = append(uploaded, stored[i])
			}
		}
		if rbErr := s.Rollback(context.WithoutCancel(ctx), uploaded); rbErr != nil {
			s.logger.Error().Err(rbErr).Int("objects", len(uploaded)).Msg("failed to remove staged proofs")
		}
		return nil, err
	}

	return stored, nil
}

// Rollback deletes previously stored objects, attempting every one.
func (s *Staging) Rollback(ctx context.Context, objects []StoredObject) error {
	var errs error
	for _, obj := range objects {
		errs = multierr.Append(errs, s.store.Delete(ctx, obj.Key))
	}
	if errs == nil && len(objects) > 0 {
		s.logger.Info().Int("objects", len(objects)).Msg("staged proofs removed")
	}
	return errs
}

// URLs returns the public URLs of the stored objects in upload order.
func URLs(objects []StoredObject) []string {
	urls := make([]string, len(objects))
	for i, obj := range objects {
		urls[i] = obj.URL
	}
	return urls
}
