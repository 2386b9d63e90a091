/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package opt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/launix-de/NonLockingReadMap"
	"github.com/pierrec/lz4/v4"
)

// S3 layout:
//   - blob:   <prefix>/blob/<hash>
//   - active: <prefix>/ACTIVE
//
// S3 has atomic object replace, so the ACTIVE pointer is a plain PutObject.

// BackendConfig selects and configures a checkpoint backend. Stored as a
// JSON file next to the data directory.
type BackendConfig struct {
	Backend string `json:"backend"` // "files" or "s3"
	Path    string `json:"path,omitempty"`

	// S3-specific fields
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"` // custom endpoint (MinIO, etc.)
	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	ForcePathStyle  bool   `json:"force_path_style,omitempty"`
}

// NewStore builds the configured checkpoint backend
func NewStore(cfg BackendConfig) (Store, error) {
	switch cfg.Backend {
	case "", "files":
		return NewFileStore(cfg.Path)
	case "s3":
		return NewS3Store(cfg), nil
	default:
		return nil, fmt.Errorf("opt: unknown checkpoint backend %q", cfg.Backend)
	}
}

// S3Store keeps checkpoint blobs in an S3-compatible object store
type S3Store struct {
	cfg   BackendConfig
	cache NonLockingReadMap.NonLockingReadMap[checkpointEntry, string]

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func NewS3Store(cfg BackendConfig) *S3Store {
	return &S3Store{cfg: cfg, cache: NonLockingReadMap.New[checkpointEntry, string]()}
}

func (s *S3Store) ensureOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return
	}
	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("S3Store: failed to load AWS config: %v", err))
	}
	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		})
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	s.client = s3.NewFromConfig(cfg, s3Opts...)
	s.opened = true
}

func (s *S3Store) key(name string) string {
	pfx := strings.TrimSuffix(s.cfg.Prefix, "/")
	if pfx == "" {
		return name
	}
	return pfx + "/" + name
}

func (s *S3Store) Save(p *Params) (string, error) {
	s.ensureOpen()
	hash := p.Hash()
	key := s.key("blob/" + hash)
	ctx := context.Background()

	// content addressing makes the existence check sufficient for idempotence
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key),
	}); err == nil {
		return hash, nil
	}

	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(p.Serialize()); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", err
	}
	s.cache.Set(&checkpointEntry{hash: hash, params: p.Clone()})
	return hash, nil
}

func (s *S3Store) Load(hash string) (*Params, error) {
	if e := s.cache.Get(hash); e != nil {
		return e.params, nil
	}
	s.ensureOpen()
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key("blob/" + hash)),
	})
	if err != nil {
		return nil, NotFoundError{hash}
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(lz4.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}
	p, err := DeserializeParams(buf)
	if err != nil {
		return nil, err
	}
	if p.Hash() != hash {
		return nil, fmt.Errorf("opt: checkpoint %s fails its integrity check", hash)
	}
	s.cache.Set(&checkpointEntry{hash: hash, params: p})
	return p, nil
}

func (s *S3Store) Active() (string, error) {
	s.ensureOpen()
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key("ACTIVE")),
	})
	if err != nil {
		return "", NotFoundError{"ACTIVE"}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *S3Store) SetActive(hash string) error {
	s.ensureOpen()
	ctx := context.Background()
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.key("blob/" + hash)),
	}); err != nil {
		return NotFoundError{hash}
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key("ACTIVE")),
		Body:   strings.NewReader(hash + "\n"),
	})
	return err
}
