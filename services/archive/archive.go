// Package archive packs a user's reports into a signed tar.zst file and
// verifies such files offline.
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"agroguard/pkg/s3"
	"agroguard/pkg/store"
)

const (
	manifestFileName = "manifest.yaml"
	reportsPrefix    = "reports"
	manifestVersion  = "1"
	kindReport       = "report"
)

// Source lists the reports to archive. *client.Client satisfies it.
type Source interface {
	ListReports(ctx context.Context) ([]store.Report, error)
}

// BuildConfig configures archive creation. Objects is optional; when set the
// finished file is also stored under archives/<file name> in Bucket.
type BuildConfig struct {
	Source  Source
	Owner   string
	Output  string
	Signer  *Signer
	Objects s3.ObjectStore
	Bucket  string
	Now     func() time.Time
	Stdout  io.Writer
}

type file struct {
	entry Entry
	data  []byte
}

// Build fetches every report from Source and writes the signed archive to
// Output.
func Build(ctx context.Context, cfg BuildConfig) (*Manifest, error) {
	if cfg.Source == nil {
		return nil, errors.New("report source is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Objects != nil && cfg.Bucket == "" {
		return nil, errors.New("bucket is required for upload")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}

	reports, err := cfg.Source.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if len(reports) == 0 {
		return nil, errors.New("no reports found to archive")
	}

	files := make([]file, 0, len(reports))
	for _, r := range reports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode report %s: %w", r.ID, err)
		}
		sum := sha256.Sum256(data)
		files = append(files, file{
			entry: Entry{
				Path:     path.Join(reportsPrefix, r.ID.String()+".json"),
				Kind:     kindReport,
				ReportID: r.ID.String(),
				Size:     int64(len(data)),
				SHA256:   hex.EncodeToString(sum[:]),
			},
			data: data,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].entry.Path < files[j].entry.Path })

	manifest := &Manifest{
		Version:   manifestVersion,
		CreatedAt: cfg.Now().UTC().Truncate(time.Second),
		Owner:     cfg.Owner,
	}
	for _, f := range files {
		manifest.Entries = append(manifest.Entries, f.entry)
	}
	if err := cfg.Signer.Seal(manifest); err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := writeArchive(cfg.Output, manifestBytes, files, manifest.CreatedAt); err != nil {
		return nil, err
	}
	fmt.Fprintf(cfg.Stdout, "wrote archive %s (%d reports)\n", cfg.Output, len(files))

	if cfg.Objects != nil {
		key, err := upload(ctx, cfg.Objects, cfg.Bucket, cfg.Output)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(cfg.Stdout, "uploaded s3://%s/%s\n", cfg.Bucket, key)
	}
	return manifest, nil
}

// ObjectKey is where Build stores an uploaded archive.
func ObjectKey(output string) string {
	return path.Join("archives", filepath.Base(output))
}

func upload(ctx context.Context, objects s3.ObjectStore, bucket, output string) (string, error) {
	f, err := os.Open(output)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return "", fmt.Errorf("hash archive: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind archive: %w", err)
	}
	key := ObjectKey(output)
	if err := objects.PutObject(ctx, bucket, key, f, size, hex.EncodeToString(hash.Sum(nil))); err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	return key, nil
}

func writeArchive(output string, manifest []byte, files []file, modTime time.Time) error {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	encoder, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(encoder)

	write := func(name string, data []byte) error {
		header := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(data)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %q: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("write %q: %w", name, err)
		}
		return nil
	}

	if err := write(manifestFileName, manifest); err != nil {
		return err
	}
	for _, f := range files {
		if err := write(f.entry.Path, f.data); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return out.Close()
}

// Verify checks the manifest signature and the size and digest of every
// entry. Extra files not listed in the manifest are rejected.
func Verify(ctx context.Context, archivePath string, signer *Signer) (*Manifest, error) {
	if archivePath == "" {
		return nil, errors.New("archive file is required")
	}
	if signer == nil {
		return nil, errors.New("signer is required")
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	var manifestBytes []byte
	digests := map[string]Entry{}
	tr := tar.NewReader(decoder)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(header.Name)
		if strings.HasPrefix(name, "../") || path.IsAbs(name) {
			return nil, fmt.Errorf("invalid entry path %q", header.Name)
		}

		if name == manifestFileName {
			if manifestBytes, err = io.ReadAll(tr); err != nil {
				return nil, fmt.Errorf("read manifest: %w", err)
			}
			continue
		}
		hash := sha256.New()
		size, err := io.Copy(hash, tr)
		if err != nil {
			return nil, fmt.Errorf("hash %q: %w", name, err)
		}
		digests[name] = Entry{Path: name, Size: size, SHA256: hex.EncodeToString(hash.Sum(nil))}
	}

	if len(manifestBytes) == 0 {
		return nil, errors.New("archive missing manifest.yaml")
	}
	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}
	if manifest.Signature == "" {
		return nil, errors.New("manifest missing signature")
	}
	if err := signer.Check(manifest); err != nil {
		return nil, fmt.Errorf("verify manifest signature: %w", err)
	}

	for _, want := range manifest.Entries {
		got, ok := digests[want.Path]
		if !ok {
			return nil, fmt.Errorf("entry %q missing from archive", want.Path)
		}
		if got.Size != want.Size {
			return nil, fmt.Errorf("size mismatch for %q: expected %d got %d", want.Path, want.Size, got.Size)
		}
		if !strings.EqualFold(got.SHA256, want.SHA256) {
			return nil, fmt.Errorf("sha256 mismatch for %q", want.Path)
		}
		delete(digests, want.Path)
	}
	for name := range digests {
		return nil, fmt.Errorf("entry %q not listed in manifest", name)
	}
	return &manifest, nil
}
